/*
Package urlparser provides utilities for parsing URL query parameters into
a given struct. It uses the mapstructure package to decode query parameters
into struct fields and supports custom decode hooks for specific types.

Example:

	type Options struct {
	    UseAscii    bool
	    ReadTimeout time.Duration
	}

	u, _ := url.Parse("memcached://localhost:11211?useascii=true&readtimeout=512ms")
	options := &Options{}
	err := urlparser.New().OptionsFromURL(u, options, nil)

After running this code, the options struct will have UseAscii set to true
and ReadTimeout set to 512ms.

Note: This package does not handle URL parsing itself. It expects a *url.URL
as input. It also does not set any fields in the struct that are not present
in the URL query parameters.
*/
package urlparser

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/memfront/memfront/internal/logext"
	"github.com/mitchellh/mapstructure"
)

// urlParser is a utility for parsing [url.URL] query parameters into a given struct.
// It uses the [mapstructure] package to decode query parameters into the struct fields.
type urlParser struct {
	decodeHooks []mapstructure.DecodeHookFunc
	log         *log.Logger
	once        sync.Once
}

func newDecoderConfig(decodeHooks ...mapstructure.DecodeHookFunc) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		ZeroFields:       true,
		WeaklyTypedInput: true,
		Squash:           true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(decodeHooks...),
	}
}

// New creates a new [urlParser] with the given [mapstructure.DecodeHookFunc] hooks.
// Decode hooks are functions that can convert query parameters into specific types.
// They are called in the order they are provided.
func New(decodeHooks ...mapstructure.DecodeHookFunc) *urlParser {
	u := &urlParser{}
	u.init(decodeHooks...)
	return u
}

func (p *urlParser) init(decodeHooks ...mapstructure.DecodeHookFunc) {
	p.once.Do(func() {
		p.log = logext.NewLogger(os.Stdout)
		if len(decodeHooks) > 0 {
			p.decodeHooks = decodeHooks
		} else {
			p.decodeHooks = []mapstructure.DecodeHookFunc{
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.StringToTimeHookFunc(time.RFC3339),
			}
		}
	})
}

func inBlacklist(bl map[string]struct{}, key string) bool {
	_, ok := bl[strings.ToLower(key)]
	return ok
}

// OptionsFromURL parses the query parameters from the given [url.URL] into the
// provided options struct, ignoring any query parameters whose keys are in
// paramKeyBlacklist. It returns an error if it fails to convert the query
// parameters into the correct types for the struct fields.
func (p *urlParser) OptionsFromURL(u *url.URL, options interface{}, paramKeyBlacklist map[string]struct{}) error {
	queryParams := make(map[string]string)
	for key, values := range u.Query() {
		if inBlacklist(paramKeyBlacklist, key) {
			continue
		}
		if len(values) > 0 {
			queryParams[key] = values[0]
		}
	}

	config := newDecoderConfig(p.decodeHooks...)
	metadata := &mapstructure.Metadata{}
	config.Result = options
	config.Metadata = metadata
	config.MatchName = func(mapKey, fieldName string) bool {
		return strings.EqualFold(mapKey, fieldName) && !inBlacklist(paramKeyBlacklist, mapKey)
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return fmt.Errorf("urlparser: failed to create decoder: %w", err)
	}

	if err := decoder.Decode(queryParams); err != nil {
		return err
	}

	p.logMetadata(options, metadata)

	return nil
}

// logMetadata logs useful information about the decoded result.
func (p *urlParser) logMetadata(dest interface{}, metadata *mapstructure.Metadata) {
	destType := reflect.TypeOf(dest).Elem()

	if len(metadata.Keys) > 0 {
		p.log.Printf("Successfully decoded url keys for %v: %v", destType, strings.Join(metadata.Keys, ", "))
	}
	if len(metadata.Unused) > 0 {
		p.log.Printf("Unused options keys for %v: %v", destType, strings.Join(metadata.Unused, ", "))
	}
	if len(metadata.Unset) > 0 {
		p.log.Printf("Unset options keys for %v: %v", destType, strings.Join(metadata.Unset, ", "))
	}
}
