package main

import (
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/solvo-project/solvo/pkg/metrics"
	"github.com/solvo-project/solvo/pkg/server"
)

// serveOptions holds the flag values of the serve command. Flags only
// override the environment-derived config when they were set
// explicitly, so apply consults fs.Changed for each one.
type serveOptions struct {
	address        string
	modelsDir      string
	storePath      string
	rateLimitRPS   float64
	rateLimitBurst int
	maxConcurrent  int
	requestTimeout time.Duration
	profiling      bool
	tlsCert        string
	tlsKey         string
}

func (o *serveOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.address, "address", ":8080", "listen address")
	fs.StringVar(&o.modelsDir, "models-dir", "", "directory of catalog models served at /v1/models")
	fs.StringVar(&o.storePath, "store", "", "sqlite database recording runs")
	fs.Float64Var(&o.rateLimitRPS, "rate-limit-rps", 50, "sustained requests per second before throttling")
	fs.IntVar(&o.rateLimitBurst, "rate-limit-burst", 100, "request burst allowed above the sustained rate")
	fs.IntVar(&o.maxConcurrent, "max-concurrent", 4, "solves allowed to run at once")
	fs.DurationVar(&o.requestTimeout, "request-timeout", 30*time.Second, "per-request solve deadline")
	fs.BoolVar(&o.profiling, "profiling", false, "serve pprof data under /debug/pprof")
	fs.StringVar(&o.tlsCert, "tls-cert", "", "path to the TLS certificate (requires --tls-key)")
	fs.StringVar(&o.tlsKey, "tls-key", "", "path to the TLS private key (requires --tls-cert)")
}

func (o *serveOptions) apply(fs *pflag.FlagSet, cfg *server.Config) {
	if fs.Changed("address") {
		cfg.Address = o.address
	}
	if fs.Changed("models-dir") {
		cfg.ModelsDir = o.modelsDir
	}
	if fs.Changed("store") {
		cfg.StorePath = o.storePath
	}
	if fs.Changed("rate-limit-rps") {
		cfg.RateLimitRPS = o.rateLimitRPS
	}
	if fs.Changed("rate-limit-burst") {
		cfg.RateLimitBurst = o.rateLimitBurst
	}
	if fs.Changed("max-concurrent") {
		cfg.MaxConcurrent = o.maxConcurrent
	}
	if fs.Changed("request-timeout") {
		cfg.RequestTimeout = o.requestTimeout
	}
	if fs.Changed("profiling") {
		cfg.Profiling = o.profiling
	}
	if fs.Changed("tls-cert") {
		cfg.TLSCert = o.tlsCert
	}
	if fs.Changed("tls-key") {
		cfg.TLSKey = o.tlsKey
	}
}

// newServeCmd returns the command that serves the solve API over HTTP.
func newServeCmd(logger *logrus.Logger) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the solve API over HTTP",
		Long: heredoc.Doc(`
			Serve exposes solving over HTTP: POST /v1/solve takes a manifest
			body, GET /v1/models lists the model catalog, and
			POST /v1/models/<name>/solve solves a catalog model with an
			optional merge patch body. Settings are read from SOLVO_*
			environment variables; flags override them.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.FromEnv()
			if err != nil {
				return err
			}
			o.apply(cmd.Flags(), cfg)

			metrics.RegisterServer()
			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			logger.Infof("serving on %s", cfg.Address)
			return srv.Run(cmd.Context())
		},
	}
	o.AddFlags(cmd.Flags())
	return cmd
}
