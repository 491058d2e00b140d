package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hitoshi/dermadash/internal/model"
	"github.com/hitoshi/dermadash/internal/render"
	"github.com/hitoshi/dermadash/internal/upload"
)

// passwordEnv はパスワードをフラグ以外で渡すための環境変数。
const passwordEnv = "DERMADASH_PASSWORD"

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析して実行する。
// outには画面の出力先、logOutにはJSONログの出力先を渡す。argsにはos.Args[1:]を渡す。
func Run(ctx context.Context, out, logOut io.Writer, args []string) error {
	root := NewRootCommand(out, logOut)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli はサブコマンド間で共有する出力先。
type cli struct {
	out    io.Writer
	logOut io.Writer
}

// NewRootCommand はdermadashのルートコマンドを生成する。
func NewRootCommand(out, logOut io.Writer) *cobra.Command {
	c := &cli{out: out, logOut: logOut}

	root := &cobra.Command{
		Use:   "dermadash",
		Short: "Skin lesion diagnosis dashboard client",
		Long: `dermadash is a client for the remote skin lesion classification service.
It manages the sign-in session, keeps diagnoses on this device until the
server confirms them, and renders history and aggregate results.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.AddCommand(
		c.loginCommand(),
		c.registerCommand(),
		c.logoutCommand(),
		c.whoamiCommand(),
		c.diagnoseCommand(),
		c.navigateCommand("history", "Show diagnosis history", model.ViewHistory),
		c.navigateCommand("results", "Show aggregate results", model.ViewResults),
		c.showCommand(),
		c.syncCommand(),
		c.serveCommand(),
	)
	return root
}

// withApp は設定を読み込んでAppを生成し、セッションを検証してからfnを実行する。
// 画面は端末に出力する。
func (c *cli) withApp(ctx context.Context, fn func(a *App) error) error {
	cfg, err := Init(c.logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	a, err := New(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	a.Verify(ctx)
	a.Attach(render.NewTextRenderer(c.out))
	return fn(a)
}

func (c *cli) loginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. The password may also be given via the
` + passwordEnv + ` environment variable. Diagnoses made while signed out are
uploaded after a successful sign-in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			return c.withApp(cmd.Context(), func(a *App) error {
				if _, err := a.Session.Login(cmd.Context(), email, password); err != nil {
					return err
				}
				return c.flush(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (or "+passwordEnv+")")
	return cmd
}

func (c *cli) registerCommand() *cobra.Command {
	var reg model.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reg.Password == "" {
				reg.Password = os.Getenv(passwordEnv)
			}
			if reg.PasswordConfirmation == "" {
				reg.PasswordConfirmation = reg.Password
			}
			return c.withApp(cmd.Context(), func(a *App) error {
				if _, err := a.Session.Register(cmd.Context(), reg); err != nil {
					return err
				}
				return c.flush(cmd.Context(), a)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.FirstName, "first-name", "", "first name")
	f.StringVar(&reg.LastName, "last-name", "", "last name")
	f.StringVar(&reg.Email, "email", "", "account email")
	f.StringVar(&reg.IdentificationNumber, "id-number", "", "identification number")
	f.StringVar(&reg.Gender, "gender", "", "Masculino, Femenino or Otro")
	f.StringVar(&reg.Phone, "phone", "", "phone number")
	f.StringVar(&reg.DateOfBirth, "date-of-birth", "", "date of birth (YYYY-MM-DD)")
	f.StringVar(&reg.Password, "password", "", "password (or "+passwordEnv+")")
	f.StringVar(&reg.PasswordConfirmation, "password-confirmation", "", "password confirmation (defaults to --password)")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				a.Session.Logout()
				return nil
			})
		},
	}
}

func (c *cli) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				u := a.Session.User()
				if u == nil {
					fmt.Fprintf(c.out, "session: %s\n", a.Session.State())
					return nil
				}
				fmt.Fprintf(c.out, "session: %s\nuser: %s (%s) <%s>\n",
					a.Session.State(), u.DisplayName(), u.RoleLabel(), u.Email)
				return nil
			})
		},
	}
}

func (c *cli) diagnoseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <image>",
		Short: "Analyze a skin lesion image",
		Long: `Send an image to the classification service and store the result.
When the server cannot be reached after the prediction, the diagnosis is kept
on this device and uploaded by the next sync.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *App) error {
				if err := a.Uploader.Select(img); err != nil {
					return err
				}
				rec, err := a.Uploader.Submit(cmd.Context(), img)
				if err != nil {
					return err
				}
				_, err = a.Router.ShowRecord(cmd.Context(), rec.ID)
				return err
			})
		},
	}
}

func (c *cli) navigateCommand(use, short string, v model.ViewState) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				_, err := a.Router.Navigate(cmd.Context(), v)
				return err
			})
		},
	}
}

func (c *cli) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single diagnosis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				_, err := a.Router.ShowRecord(cmd.Context(), args[0])
				return err
			})
		},
	}
}

func (c *cli) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upload diagnoses kept on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *App) error {
				if a.Session.State() != model.SessionAuthenticated {
					return model.NewAuthExpiredError()
				}
				report, err := a.Store.SyncPending(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "attempted: %d, confirmed: %d, failed: %d, remaining: %d\n",
					report.Attempted, report.Confirmed, report.Failed, report.Remaining)
				return nil
			})
		},
	}
}

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API and WebSocket server",
		Long: `Run the dashboard API. Views and charts are pushed to connected browsers
over WebSocket at /ws, and Prometheus metrics are exposed at /metrics.
Pending diagnoses are retried in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(c.logOut)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			a, err := New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			// グレースフルシャットダウンのためのシグナルハンドリング
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a, serveOptions{})
		},
	}
}

// flush はログイン前に作成した未確定記録を送信し、結果を出力する。
func (c *cli) flush(ctx context.Context, a *App) error {
	report, err := a.Store.SyncPending(ctx)
	if err != nil {
		// 記録はローカルに残り、次回の同期で再送される
		a.Logger.Warn("pending upload failed", slog.String("error", err.Error()))
		return nil
	}
	if report.Attempted > 0 {
		fmt.Fprintf(c.out, "uploaded %d of %d saved diagnoses\n", report.Confirmed, report.Attempted)
	}
	return nil
}

// readImage は画像ファイルを読み込み、拡張子または内容からMIMEタイプを判定する。
func readImage(path string) (upload.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return upload.Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return upload.Image{
		Filename: filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	}, nil
}
