package main

import (
	"context"
	"fmt"
	"time"

	"github.com/carlmjohnson/requests"
)

// healthcheckExitCode checks whether the running instance answers on its
// public address and returns the process exit code for the healthcheck
// subcommand.
func (a *goSocial) healthcheckExitCode() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	err := requests.URL(a.cfg.Server.PublicAddress).
		Path("/ping").
		Client(a.httpClient).
		Fetch(ctx)
	if err != nil {
		fmt.Println("Healthcheck failed:", err.Error())
		return 1
	}
	return 0
}
