package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/habedi/gigsync/client"
	"github.com/habedi/gigsync/pkg/clierr"
	"github.com/habedi/gigsync/pkg/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// loginCmd logs in with email and password and stores the session.
func loginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to your account",
		Long:  "Log in with your email and password. The session is kept in the credential store and renewed automatically.",
		Run: func(cmd *cobra.Command, args []string) {
			p := newPrompter(cmd)
			if email == "" {
				email = p.input("Email: ")
			}
			password := p.password("Password: ")

			if err := validateCredentials(email, password); err != nil {
				printError(cmd, err)
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				user, err := s.client.Login(ctx, email, password)
				if err != nil {
					if client.IsStatus(err, http.StatusUnauthorized) || client.IsStatus(err, http.StatusBadRequest) {
						return clierr.New(clierr.Auth, "Login failed. Check your email and password.", err)
					}
					return err
				}
				cmd.Printf("Login was successful. Welcome, %s.\n", user.NickName)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address of the account")

	cmd.AddCommand(findEmailCmd(), resetPasswordCmd())

	return cmd
}

// findEmailCmd recovers the email an account was registered with.
func findEmailCmd() *cobra.Command {
	var phone string

	cmd := &cobra.Command{
		Use:   "find-email",
		Short: "Look up the email address registered for a phone number",
		Run: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateNonEmptyString("phone number", phone); err != nil {
				printError(cmd, invalid(err))
				return
			}
			withSession(cmd, func(ctx context.Context, s *session) error {
				email, err := s.client.FindEmail(ctx, phone)
				if err != nil {
					if client.IsStatus(err, http.StatusNotFound) || client.IsStatus(err, http.StatusBadRequest) {
						return clierr.New(clierr.NotFound, "No account is registered with that phone number.", err)
					}
					return err
				}
				cmd.Printf("Registered email: %s\n", email)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number given at signup (required)")

	return cmd
}

// resetPasswordCmd sets a new password in two steps, like signup: request a code, then reset with it.
func resetPasswordCmd() *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Reset a forgotten password",
		Long: "Reset a forgotten password. Run it once with --email to receive a verification code, " +
			"then again with --code to choose the new password.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateEmail(email); err != nil {
				printError(cmd, invalid(err))
				return
			}

			if code == "" {
				withSession(cmd, func(ctx context.Context, s *session) error {
					if err := s.client.SendVerificationCode(ctx, email); err != nil {
						return err
					}
					cmd.Printf("A verification code was sent to %s. Run 'gigsync login reset-password --email %s --code <code>' to finish.\n", email, email)
					return nil
				})
				return
			}

			password := newPrompter(cmd).password("New password: ")
			if err := validation.ValidateNonEmptyString("password", password); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				err := s.client.ResetPassword(ctx, client.ResetPasswordRequest{
					Email:            email,
					VerificationCode: code,
					Password:         password,
				})
				if err != nil {
					if client.IsStatus(err, http.StatusBadRequest) {
						return clierr.New(clierr.Validation, "Password reset failed: "+err.Error(), err)
					}
					return err
				}
				cmd.Println("Your password was reset. You can now run 'gigsync login'.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address of the account (required)")
	cmd.Flags().StringVarP(&code, "code", "c", "", "Verification code received by email")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		Run: func(cmd *cobra.Command, args []string) {
			withSession(cmd, func(ctx context.Context, s *session) error {
				err := s.client.Logout(ctx)
				if errors.Is(err, client.ErrNotLoggedIn) {
					cmd.Println("You are not logged in.")
					return nil
				}
				if err != nil {
					cmd.PrintErrln("Warning: the server did not confirm the logout; the local session was removed anyway.")
				}
				cmd.Println("Logged out.")
				return nil
			})
		},
	}
}

// whoamiCmd shows the stored account and how long its access token stays valid.
func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Run: func(cmd *cobra.Command, args []string) {
			withSession(cmd, func(ctx context.Context, s *session) error {
				cred, err := s.client.Session(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("User ID: %d\n", cred.UserID)
				cmd.Printf("Nickname: %s\n", cred.NickName)
				cmd.Printf("Email: %s\n", cred.Email)
				cmd.Printf("Role: %s\n", cred.Role)

				remaining, err := s.client.Clock().Remaining(cred.AccessToken)
				switch {
				case err != nil:
					cmd.Println("Access token: unreadable, it will be renewed on the next request")
				case remaining <= 0:
					cmd.Println("Access token: expired, it will be renewed on the next request")
				default:
					cmd.Printf("Access token: valid for %s\n", remaining.Round(time.Second))
				}
				return nil
			})
		},
	}
}

// signupCmd registers an account in two steps: request a code, then sign up with it.
func signupCmd() *cobra.Command {
	var email, nickName, phone, code string
	var admin bool

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a new account",
		Long: "Create a new account. Run it once with --email to receive a verification code, " +
			"then again with --code and the remaining details.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateEmail(email); err != nil {
				printError(cmd, invalid(err))
				return
			}

			if code == "" {
				withSession(cmd, func(ctx context.Context, s *session) error {
					if err := s.client.SendVerificationCode(ctx, email); err != nil {
						return err
					}
					cmd.Printf("A verification code was sent to %s. Run 'gigsync signup --email %s --code <code> --nickname <name>' to finish.\n", email, email)
					return nil
				})
				return
			}

			if err := validation.ValidateNonEmptyString("nickname", nickName); err != nil {
				printError(cmd, invalid(err))
				return
			}
			password := newPrompter(cmd).password("Choose a password: ")
			if err := validation.ValidateNonEmptyString("password", password); err != nil {
				printError(cmd, invalid(err))
				return
			}

			withSession(cmd, func(ctx context.Context, s *session) error {
				req := client.SignupRequest{
					Email:            email,
					Password:         password,
					NickName:         nickName,
					PhoneNumber:      phone,
					VerificationCode: code,
				}
				register, kind := s.client.Signup, "Account"
				if admin {
					register, kind = s.client.AdminSignup, "Admin account"
				}
				if err := register(ctx, req); err != nil {
					return err
				}
				cmd.Printf("%s created. You can now run 'gigsync login'.\n", kind)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address for the new account (required)")
	cmd.Flags().StringVarP(&nickName, "nickname", "n", "", "Nickname shown to other users")
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number")
	cmd.Flags().StringVarP(&code, "code", "c", "", "Verification code received by email")
	cmd.Flags().BoolVar(&admin, "admin", false, "Register the account with the admin role")

	return cmd
}

// prompter reads answers from the command's input, hiding passwords on a terminal.
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
	fd     int
	tty    bool
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	p := &prompter{cmd: cmd, reader: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// input prompts for a line and returns it trimmed, or "" when input ends.
func (p *prompter) input(prompt string) string {
	fmt.Fprint(p.cmd.OutOrStdout(), prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(line)
}

func (p *prompter) password(prompt string) string {
	if !p.tty {
		return p.input(prompt)
	}
	fmt.Fprint(p.cmd.OutOrStdout(), prompt)
	password, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.cmd.OutOrStdout())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(password))
}

// validateCredentials checks the email looks like one and the password is not empty.
func validateCredentials(email, password string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return invalid(err)
	}
	if err := validation.ValidateNonEmptyString("password", password); err != nil {
		return invalid(err)
	}
	return nil
}
