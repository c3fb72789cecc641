package main

import (
	"context"
	"io"
	"log"
	"os"

	"go.pilab.hu/oidcstore/cmd/oidcstorectl/cmd"
	"go.pilab.hu/oidcstore/tracing"
)

func main() {
	// Spans are only needed for their trace context on outgoing requests.
	tp, err := tracing.InitTracerProviderTo("oidcstorectl", io.Discard)
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}

	code := 0
	if err := cmd.Execute(); err != nil {
		code = 1
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		log.Printf("Error shutting down TracerProvider: %v", err)
	}
	os.Exit(code)
}
