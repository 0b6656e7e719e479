// Command synthetic-trainer is a trainer worker backed by the deterministic
// synthetic model. It speaks the worker protocol on stdin/stdout, or over a
// websocket when MOTIFSWEEP_SESSION_URL is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/signalnine/motifsweep/internal/trainer"
	"github.com/signalnine/motifsweep/internal/trainer/synthetic"
)

// run serves one host session. sessionURL selects the websocket transport.
func run(ctx context.Context, opts synthetic.Options, sessionURL string, in io.Reader, out io.WriteCloser) error {
	var (
		conn trainer.Conn
		err  error
	)
	if sessionURL != "" {
		conn, err = trainer.DialSession(ctx, sessionURL)
		if err != nil {
			return err
		}
	} else {
		conn = trainer.NewStreamConn(in, out)
	}
	defer conn.Close()
	return trainer.Serve(ctx, conn, synthetic.New(opts))
}

func main() {
	plateau := flag.Int("plateau", 3, "epoch after which validation stops improving")
	failModel := flag.String("fail-model", "", "architecture whose build fails")
	divergeModel := flag.String("diverge-model", "", "architecture whose loss is NaN")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// stdout carries the protocol.
	log.SetOutput(os.Stderr)
	if !*debug {
		log.SetFlags(0)
	}
	url := os.Getenv(trainer.SessionURLEnv)
	if *debug {
		transport := "stdio"
		if url != "" {
			transport = url
		}
		log.Printf("synthetic-trainer serving on %s (plateau %d)", transport, *plateau)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := synthetic.Options{Plateau: *plateau, FailModel: *failModel, DivergeModel: *divergeModel}
	if err := run(ctx, opts, url, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "synthetic-trainer: %v\n", err)
		os.Exit(1)
	}
}
