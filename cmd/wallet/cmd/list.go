package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		creds, err := env.wallet.List(ctx)
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			fmt.Println("No credentials stored.")
			return nil
		}

		for _, stored := range creds {
			types := "unknown"
			format := "unknown"
			if parsed, err := credential.Parse(stored.VC); err == nil {
				format = parsed.Format()
				types = fmt.Sprintf("%v", parsed.TypeList())
			}
			fmt.Printf("%s\t%s\t%s\n", stored.ID, format, types)
		}
		return nil
	},
}

var didCmd = &cobra.Command{
	Use:   "did",
	Short: "Print the wallet's DID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		fmt.Println(env.wallet.DID())
		return nil
	},
}
