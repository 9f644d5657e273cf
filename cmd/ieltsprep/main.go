package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/ieltsprep/internal/gemini"
	"github.com/pavelanni/ieltsprep/internal/handler"
	appI18n "github.com/pavelanni/ieltsprep/internal/i18n"
	"github.com/pavelanni/ieltsprep/internal/ingest"
	"github.com/pavelanni/ieltsprep/internal/llm"
	"github.com/pavelanni/ieltsprep/internal/llm/prompts"
	"github.com/pavelanni/ieltsprep/internal/model"
	"github.com/pavelanni/ieltsprep/internal/repository"
	"github.com/pavelanni/ieltsprep/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ieltsprep",
		Short: "IELTS practice server with local and cloud persistence",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), exportCmd(), storageCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `ieltsprep --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// addStorageFlags registers the flags every command needs to reach storage.
func addStorageFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "ieltsprep.db", "Local SQLite database path")
	f.String("remote-url", "", "Remote database URL or Supabase project ref for this run (the saved config is kept)")
	f.String("remote-key", "", "Remote database key")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addGeminiFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("gemini-key", "", "Gemini API key for document extraction")
	f.String("gemini-model", gemini.DefaultModel, "Gemini model name")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	addStorageFlags(cmd)
	addGeminiFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the grading and examiner model")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStrict), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default message language (en, vi)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ielts)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins for the web client")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Extract practice tests from a PDF into a new question bank",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	addStorageFlags(cmd)
	addGeminiFlags(cmd)
	cmd.Flags().StringP("module", "m", "", "Module to extract (reading, writing, speaking)")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all test results as JSON",
		RunE:  runExport,
	}
	addStorageFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func storageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Show or change the remote storage configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active storage mode",
		RunE:  runStorageShow,
	}
	set := &cobra.Command{
		Use:   "set URL KEY",
		Short: "Save a remote database configuration",
		Args:  cobra.ExactArgs(2),
		RunE:  runStorageSet,
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the remote configuration and use local storage only",
		RunE:  runStorageClear,
	}
	for _, c := range []*cobra.Command{show, set, clearCmd} {
		addStorageFlags(c)
	}
	cmd.AddCommand(show, set, clearCmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("IELTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("ieltsprep")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ieltsprep")
	v.AddConfigPath("/etc/ieltsprep")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// app is the storage stack shared by every command.
type app struct {
	local    *store.LocalStore
	backends *repository.Backends
	content  *repository.ContentRepository
	results  *repository.ResultRepository
	users    *repository.UserRepository
}

func openApp(ctx context.Context, v *viper.Viper) (*app, error) {
	local, err := store.OpenLocal(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	backends, err := repository.NewBackends(ctx, local, local, repository.ConnectRemote)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if url := v.GetString("remote-url"); url != "" {
		cfg := model.DBConfig{URL: url, Key: v.GetString("remote-key")}
		if err := backends.Apply(ctx, cfg); err != nil {
			_ = backends.Close()
			local.Close()
			return nil, fmt.Errorf("apply remote config: %w", err)
		}
	}
	return &app{
		local:    local,
		backends: backends,
		content:  repository.NewContentRepository(backends),
		results:  repository.NewResultRepository(backends),
		users:    repository.NewUserRepository(backends),
	}, nil
}

func (a *app) Close() {
	if err := a.backends.Close(); err != nil {
		slog.Warn("close remote store", "error", err)
	}
	if err := a.local.Close(); err != nil {
		slog.Warn("close local store", "error", err)
	}
}

// newImporter returns nil when no Gemini key is configured.
func newImporter(ctx context.Context, v *viper.Viper, banks ingest.BankSaver) (*ingest.Service, func(), error) {
	key := v.GetString("gemini-key")
	if key == "" {
		return nil, func() {}, nil
	}
	ext, err := gemini.New(ctx, key, v.GetString("gemini-model"))
	if err != nil {
		return nil, nil, fmt.Errorf("create gemini client: %w", err)
	}
	closeFn := func() {
		if err := ext.Close(); err != nil {
			slog.Warn("close gemini client", "error", err)
		}
	}
	return ingest.New(ext, banks), closeFn, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	if err := prompts.Load(prompts.Files); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	a, err := openApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.users.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	importer, closeImporter, err := newImporter(ctx, v, a.content)
	if err != nil {
		return err
	}
	defer closeImporter()

	deps := handler.Deps{
		Sessions: a.local,
		Backends: a.backends,
		Content:  a.content,
		Results:  a.results,
		Users:    a.users,
	}
	if importer != nil {
		deps.Importer = importer
	} else {
		slog.Warn("no gemini key, document import disabled")
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using strict", "variant", promptVariant)
		promptVariant = string(prompts.PromptStrict)
	}
	if key := v.GetString("llm-key"); key != "" {
		client := llm.New(v.GetString("llm-url"), key, v.GetString("llm-model"), prompts.PromptVariant(promptVariant))
		deps.Grader = client
		deps.Examiner = client
	} else {
		slog.Warn("no llm key, writing grading and speaking disabled")
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(deps, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
		BasePath:      basePath,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"storage", a.backends.Mode(),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"prompt_variant", promptVariant,
		"lang", lang,
		"base_path", basePath,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	module, ok := model.ParseModule(v.GetString("module"))
	if !ok {
		return fmt.Errorf("unknown module %q", v.GetString("module"))
	}
	if err := prompts.Load(prompts.Files); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	a, err := openApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	importer, closeImporter, err := newImporter(ctx, v, a.content)
	if err != nil {
		return err
	}
	defer closeImporter()
	if importer == nil {
		return fmt.Errorf("gemini key is required: set --gemini-key or IELTS_GEMINI_KEY")
	}

	bank, err := importer.Import(ctx, data, filepath.Base(args[0]), module)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s test(s) into %q (%s)\n", len(bank.Tests), module, bank.Name, bank.ID)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	a, err := openApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	export, err := repository.Export(ctx, a.users, a.results, a.backends.Mode(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func runStorageShow(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	a, err := openApp(context.Background(), viperForCmd(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	printStorage(cmd.OutOrStdout(), a.backends)
	return nil
}

func runStorageSet(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	ctx := context.Background()
	a, err := openApp(ctx, viperForCmd(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.backends.SetConfig(ctx, &model.DBConfig{URL: args[0], Key: args[1]}); err != nil {
		return err
	}
	printStorage(cmd.OutOrStdout(), a.backends)
	return nil
}

func runStorageClear(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	ctx := context.Background()
	a, err := openApp(ctx, viperForCmd(cmd))
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.backends.SetConfig(ctx, nil); err != nil {
		return err
	}
	printStorage(cmd.OutOrStdout(), a.backends)
	return nil
}

func printStorage(w io.Writer, b *repository.Backends) {
	if cfg := b.Config(); cfg != nil {
		fmt.Fprintf(w, "storage: %s (%s)\n", b.Mode(), cfg.URL)
		return
	}
	fmt.Fprintf(w, "storage: %s\n", b.Mode())
}
