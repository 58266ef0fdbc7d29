package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ThomasJRyan/Nitrix/internal/config"
	"github.com/ThomasJRyan/Nitrix/internal/logging"
	"github.com/ThomasJRyan/Nitrix/internal/matrix"
)

const loginTimeout = 30 * time.Second

func newLoginCmd(opts *options) *cobra.Command {
	var passwordFile string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify and save credentials for auto-login",
		Long: `Log in to the homeserver once to check the credentials, then save them
to the config file so the client can log in without asking.

The password is read from the terminal, or from --password-file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := opts.cfg.Credentials()
			if strings.TrimSpace(creds.Homeserver) == "" {
				return errors.New("homeserver is required (--homeserver)")
			}
			if strings.TrimSpace(creds.Username) == "" {
				return errors.New("username is required (--username)")
			}

			password, err := readPassword(cmd, passwordFile)
			if err != nil {
				return err
			}
			creds.Password = password

			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()
			userID, err := verifyLogin(ctx, opts.cfg.Account.DeviceID, creds)
			if err != nil {
				return err
			}

			path := opts.configPath()
			if err := config.SaveCredentials(path, creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Logged in as %s\n", userID)
			fmt.Fprintf(cmd.ErrOrStderr(), "Credentials saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from a file (- prompts)")
	return cmd
}

// verifyLogin performs a real login and logs the new device out again.
func verifyLogin(ctx context.Context, deviceID string, creds config.Credentials) (string, error) {
	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: creds.Homeserver,
		DeviceID:      deviceID,
		Logger:        logging.Component("matrix"),
	})
	if err != nil {
		return "", err
	}
	sess, err := client.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	if err := sess.Logout(ctx); err != nil {
		logging.Logger.Debug().Err(err).Msg("logout of verification session failed")
	}
	return sess.UserID(), nil
}

func readPassword(cmd *cobra.Command, passwordFile string) (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		password := strings.TrimRight(string(data), "\r\n")
		if password == "" {
			return "", fmt.Errorf("password file %s is empty", passwordFile)
		}
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the password prompt (use --password-file)")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	return string(password), nil
}
