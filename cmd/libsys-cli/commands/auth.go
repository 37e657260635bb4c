package commands

import (
	"bufio"
	"fmt"
	"mime"
	"os"
	"strings"
	"webopac/cmd/libsys-cli/globals"
	"webopac/internal/libsys"

	"github.com/spf13/cobra"
)

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password, read from $LIBSYS_PASSWORD or prompted for when empty")
	loginCmd.Flags().StringVar(&captchaFile, "captcha-file", "captcha", "where the captcha image is written, the extension is added from its type")
	identityCmd.Flags().StringVar(&identityName, "name", "", "real name of the reader")
	identityCmd.Flags().StringVar(&identityPassword, "new-password", "", "new password, 8 to 12 characters with a digit, an upper and a lower case letter")
	identityCmd.MarkFlagRequired("name")
	identityCmd.MarkFlagRequired("new-password")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(logoutCmd)
}

var (
	loginPassword    string
	captchaFile      string
	identityName     string
	identityPassword string
)

func prompt(reader *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		exitOn(fmt.Errorf("read %s: %w", strings.TrimSuffix(label, ": "), err))
	}
	return strings.TrimSpace(line)
}

func captchaPath(base, contentType string) string {
	extensions, err := mime.ExtensionsByType(contentType)
	if err != nil || len(extensions) == 0 {
		return base
	}
	return base + extensions[0]
}

var loginCmd = &cobra.Command{
	Use:   "login <account number>",
	Short: "Log in with a captcha and store the session.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		g := globals.Get(ctx)
		accountNumber := args[0]
		stdin := bufio.NewReader(os.Stdin)

		password := loginPassword
		if password == "" {
			password = os.Getenv("LIBSYS_PASSWORD")
		}
		if password == "" {
			password = prompt(stdin, "password: ")
		}

		challenge := g.Client.IssueChallenge(ctx)
		if !challenge.OK() {
			render(cmd, challenge, nil)
			return
		}
		path := captchaPath(captchaFile, challenge.Data.CaptchaType)
		exitOn(os.WriteFile(path, challenge.Data.CaptchaImage, 0600))
		fmt.Fprintf(os.Stderr, "captcha written to %s\n", path)

		result := g.Client.Verify(ctx, libsys.Credentials{
			Session:       challenge.Data.Session,
			AccountNumber: accountNumber,
			Password:      password,
			Captcha:       prompt(stdin, "captcha: "),
		})
		os.Remove(path)
		if result.OK() {
			exitOn(g.Store.Save(ctx, accountNumber, *result.Data))
		}

		render(cmd, result, func(session libsys.Session) {
			if result.Code == libsys.CodeIdentityRequired {
				fmt.Printf("%s: complete it with `libsys-cli identity -a %s --name <name> --new-password <password>`\n", result.Message, accountNumber)
				return
			}
			fmt.Printf("%s, session stored for %s\n", result.Message, accountNumber)
		})
	},
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Complete the first-login identity verification and set a new password.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		g := globals.Get(ctx)

		account, session, err := storedSession(ctx, g)
		exitOn(err)

		result := g.Client.CompleteIdentityVerification(ctx, session, identityName, identityPassword)
		if result.OK() {
			// the stored session is worthless once the password changed
			exitOn(g.Store.Delete(ctx, account))
		}
		render(cmd, result, func(outcome libsys.IdentityOutcome) {
			fmt.Printf("%s, log in again with `libsys-cli login %s`\n", result.Message, account)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		g := globals.Get(ctx)

		account, session, err := storedSession(ctx, g)
		exitOn(err)

		result := g.Client.Logout(session)
		exitOn(g.Store.Delete(ctx, account))
		render(cmd, result, func(libsys.Session) {
			fmt.Printf("%s: %s\n", result.Message, account)
		})
	},
}
