package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and event stream",
		RunE: func(_ *cobra.Command, _ []string) error {
			if addr != "" {
				cfg.Addr = addr
			}
			a, err := newApp(cfg, flags.sim)
			if err != nil {
				return err
			}
			defer a.Close()

			var history History
			if a.store != nil {
				history = a.store
			}
			api := newAPI(a.svc, history, a.machine.Resume)
			defer api.Close()

			srv := &http.Server{
				Addr: cfg.Addr,
				Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					w.Header().Set("Access-Control-Allow-Origin", "*")
					w.Header().Set("Access-Control-Allow-Methods", "*")
					logrus.WithFields(logrus.Fields{
						"method": req.Method,
						"path":   req.URL.Path,
						"remote": req.RemoteAddr,
					}).Debug("request")
					api.ServeHTTP(w, req)
				}),
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sig
				logrus.Info("shutting down")
				srv.Close()
			}()

			logrus.WithField("addr", cfg.Addr).Info("listening")
			err = srv.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on (default from config)")
	return cmd
}
