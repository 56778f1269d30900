package main

import (
	"context"
	"flag"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
)

func main() {
	var err error

	// Command line flags
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")
	configfile := flag.String("config", "", "use a specific config file")

	// Init CPU and memory profiling
	flag.Parse()
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatalln("could not create CPU profile: ", err)
			return
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalln("could not start CPU profile: ", err)
			return
		}
		defer pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		defer func() {
			f, err := os.Create(*memprofile)
			if err != nil {
				log.Fatalln("could not create memory profile: ", err.Error())
				return
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalln("could not write memory profile: ", err.Error())
				return
			}
		}()
	}

	app := &goSocial{
		httpClient: newHttpClient(),
	}

	// Initialize config
	if err = app.loadConfigFile(*configfile); err != nil {
		app.logErrAndQuit("Failed to load config file", "err", err)
		return
	}
	if err = app.initConfig(); err != nil {
		app.logErrAndQuit("Failed to init config", "err", err)
		return
	}

	// Healthcheck tool
	if len(flag.Args()) >= 1 && flag.Args()[0] == "healthcheck" {
		// Connect to public address + "/ping" and exit with 0 when successful
		health := app.healthcheckExitCode()
		app.shutdown.ShutdownAndWait()
		os.Exit(health)
		return
	}

	// Initialize database and content pools
	if err = app.initDatabase(); err != nil {
		app.logErrAndQuit("Failed to init database", "err", err)
		return
	}
	app.initContentPools()

	// One-off feed check tool
	if len(flag.Args()) >= 1 && flag.Args()[0] == "rss-once" {
		if err = app.pollFeeds(context.Background()); err != nil {
			app.logErrAndQuit("Failed to poll feeds", "err", err)
			return
		}
		app.shutdown.ShutdownAndWait()
		return
	}

	// Initialize and start components
	if err = app.initScheduler(); err != nil {
		app.logErrAndQuit("Failed to init scheduler", "err", err)
		return
	}
	app.sched.start()
	app.startFanout()

	// Start the server
	if err = app.startServer(); err != nil {
		app.logErrAndQuit("Failed to start server", "err", err)
		return
	}

	// Wait till everything is shutdown
	app.shutdown.Wait()
}

func (a *goSocial) logErrAndQuit(msg string, args ...any) {
	a.error(msg, args...)
	a.shutdown.ShutdownAndWait()
	os.Exit(1)
}
