package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockbase-labs/oid4vc-suite/internal/wallet"
)

var issueCode string

var issueCmd = &cobra.Command{
	Use:   "issue <offer-uri>",
	Short: "Obtain a credential from a credential offer",
	Long: `Runs the issuance flow for a scanned credential offer deep link.

Pre-authorized offers complete in one invocation. For authorization_code
offers, run once without --code to print the authorization URL, visit it, then
run again with --code set to the code returned to the redirect URI.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup()
		if err != nil {
			return err
		}
		defer env.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		offerURI := args[0]
		if issueCode != "" {
			stored, err := env.wallet.CompleteIssuance(ctx, offerURI, issueCode)
			if err != nil {
				return err
			}
			fmt.Printf("Stored credential %s\n", stored.ID)
			return nil
		}

		stored, err := env.wallet.Issue(ctx, offerURI)
		if err == nil {
			fmt.Printf("Stored credential %s\n", stored.ID)
			return nil
		}

		// Not a pre-authorized offer: print the authorization URL instead.
		offer, parseErr := wallet.ParseOfferURI(offerURI)
		if parseErr != nil || offer.Grants == nil || offer.Grants.AuthorizationCode == nil {
			return err
		}
		metadata, metaErr := env.wallet.FetchIssuerMetadata(ctx, offer.CredentialIssuer)
		if metaErr != nil {
			return metaErr
		}
		authorizeURL, state := env.wallet.AuthorizationURL(metadata)
		fmt.Printf("Visit to authorize (state %s):\n%s\n", state, authorizeURL)
		fmt.Println("Then rerun with --code <code>.")
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueCode, "code", "", "Authorization code returned to the redirect URI")
}
