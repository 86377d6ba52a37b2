package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var presentCmd = &cobra.Command{
	Use:   "present <request-link>",
	Short: "Present a matching credential to a verifier",
	Long: `Fetches the presentation request behind a scanned openid4vp deep link (or a
bare request URI), selects the first stored credential matching the requested
type, signs a presentation and submits it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		verdict, err := env.wallet.Present(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
