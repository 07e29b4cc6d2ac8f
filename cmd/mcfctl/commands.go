package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/memfront/memfront"
)

var cacheURL string

// withCache opens the cache named by --url, runs fn, and closes it.
func withCache(cmd *cobra.Command, fn func(ctx context.Context, c *memfront.Cache) error) error {
	ctx := cmd.Context()
	c, err := memfront.OpenCache(ctx, cacheURL, nil)
	if err != nil {
		return errors.Wrapf(err, "open %s", cacheURL)
	}
	defer c.Close()
	return fn(ctx, c)
}

// expiryFromTTL maps the --ttl flag onto an expiry; zero means keep forever.
func expiryFromTTL(ttl time.Duration) memfront.Expiry {
	if ttl <= 0 {
		return memfront.NoExpiry
	}
	return memfront.TTL(ttl)
}

func reportStored(ok bool) {
	if ok {
		fmt.Println("OK")
	} else {
		fmt.Println("NOT STORED")
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Get value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				value, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s\n", value)
				return nil
			})
		},
	}
}

func newMGetCommand() *cobra.Command {
	var showCAS bool

	cmd := &cobra.Command{
		Use:   "mget [key]...",
		Short: "Get values for multiple keys",
		Long: heredoc.Doc(`
			Fetches several keys in one round trip. Absent keys are
			omitted from the output. With --cas each line also carries
			the key's version token.
		`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				var (
					values map[string][]byte
					tokens map[string]uint64
					err    error
				)
				if showCAS {
					values, tokens, err = c.GetMultiCAS(ctx, args)
				} else {
					values, err = c.GetMulti(ctx, args)
				}
				if err != nil {
					return err
				}

				found := lo.Keys(values)
				sort.Strings(found)
				for _, key := range found {
					if showCAS {
						fmt.Printf("%s\t%d\t%s\n", key, tokens[key], values[key])
					} else {
						fmt.Printf("%s\t%s\n", key, values[key])
					}
				}
				missing := lo.Without(args, found...)
				for _, key := range lo.Uniq(missing) {
					fmt.Printf("%s\t<missing>\n", key)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&showCAS, "cas", false, "also print CAS version tokens")
	return cmd
}

// newStoreCommand builds the shared shape of set/add/replace.
func newStoreCommand(use, short string, store func(ctx context.Context, c *memfront.Cache, key string, value []byte, exp memfront.Expiry) (bool, error)) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   use + " [key] [value]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				ok, err := store(ctx, c, args[0], []byte(args[1]), expiryFromTTL(ttl))
				if err != nil {
					return err
				}
				reportStored(ok)
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&ttl, "ttl", "t", 0, "time to live, 0 keeps the entry forever")
	return cmd
}

func newSetCommand() *cobra.Command {
	return newStoreCommand("set", "Set key to value unconditionally",
		func(ctx context.Context, c *memfront.Cache, key string, value []byte, exp memfront.Expiry) (bool, error) {
			return c.Set(ctx, key, value, exp)
		})
}

func newAddCommand() *cobra.Command {
	return newStoreCommand("add", "Store value only if key is absent",
		func(ctx context.Context, c *memfront.Cache, key string, value []byte, exp memfront.Expiry) (bool, error) {
			return c.Add(ctx, key, value, exp)
		})
}

func newReplaceCommand() *cobra.Command {
	return newStoreCommand("replace", "Store value only if key exists",
		func(ctx context.Context, c *memfront.Cache, key string, value []byte, exp memfront.Expiry) (bool, error) {
			return c.Replace(ctx, key, value, exp)
		})
}

func newCASCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "cas [key] [value] [token]",
		Short: "Store value only if the CAS token is still current",
		Long: heredoc.Doc(`
			Performs a compare-and-swap. Obtain a token with
			"mget --cas"; the store succeeds only if no other write
			landed since that token was issued.
		`),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return errors.Wrap(err, "parse token")
			}
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				ok, err := c.CompareAndSwap(ctx, args[0], []byte(args[1]), token, expiryFromTTL(ttl))
				if err != nil {
					return err
				}
				reportStored(ok)
				return nil
			})
		},
	}

	cmd.Flags().DurationVarP(&ttl, "ttl", "t", 0, "time to live, 0 keeps the entry forever")
	return cmd
}

// newConcatCommand builds the shared shape of append/prepend.
func newConcatCommand(use, short string, concat func(ctx context.Context, c *memfront.Cache, key string, value []byte) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [key] [value]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				ok, err := concat(ctx, c, args[0], []byte(args[1]))
				if err != nil {
					return err
				}
				reportStored(ok)
				return nil
			})
		},
	}
}

func newAppendCommand() *cobra.Command {
	return newConcatCommand("append", "Append bytes to an existing value",
		func(ctx context.Context, c *memfront.Cache, key string, value []byte) (bool, error) {
			return c.Append(ctx, key, value)
		})
}

func newPrependCommand() *cobra.Command {
	return newConcatCommand("prepend", "Prepend bytes to an existing value",
		func(ctx context.Context, c *memfront.Cache, key string, value []byte) (bool, error) {
			return c.Prepend(ctx, key, value)
		})
}

// newCountCommand builds the shared shape of incr/decr.
func newCountCommand(use, short string, count func(ctx context.Context, c *memfront.Cache, key string, delta uint64) (uint64, error)) *cobra.Command {
	var delta uint64

	cmd := &cobra.Command{
		Use:   use + " [key]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				result, err := count(ctx, c, args[0], delta)
				if err != nil {
					return err
				}
				fmt.Println(result)
				return nil
			})
		},
	}

	cmd.Flags().Uint64VarP(&delta, "delta", "d", 1, "amount to adjust the counter by")
	return cmd
}

func newIncrCommand() *cobra.Command {
	return newCountCommand("incr", "Increment a numeric counter",
		func(ctx context.Context, c *memfront.Cache, key string, delta uint64) (uint64, error) {
			return c.Increment(ctx, key, delta)
		})
}

func newDecrCommand() *cobra.Command {
	return newCountCommand("decr", "Decrement a numeric counter, flooring at zero",
		func(ctx context.Context, c *memfront.Cache, key string, delta uint64) (uint64, error) {
			return c.Decrement(ctx, key, delta)
		})
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [key]",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				existed, err := c.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if existed {
					fmt.Println("OK")
				} else {
					fmt.Println("NOT FOUND")
				}
				return nil
			})
		},
	}
}

func newFlushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Invalidate every entry in the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				if err := c.Flush(ctx); err != nil {
					return err
				}
				fmt.Println("OK")
				return nil
			})
		},
	}
}

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check backend reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, c *memfront.Cache) error {
				if err := c.Ping(ctx); err != nil {
					return err
				}
				fmt.Println("PONG")
				return nil
			})
		},
	}
}
