package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jinzhu/configor"
	log "github.com/sirupsen/logrus"
)

func main() {
	configFilePath := flag.String("configfile", "config.json", "Configuration File Path")
	workerOverride := flag.Int("workers", 0, "Override the configured worker count")
	watchMode := flag.Bool("watch", false, "Watch the directory and upload files as they settle")
	testConnection := flag.Bool("test-connection", false, "Verify connectivity and credentials, then exit")
	createConfig := flag.Bool("create-config", false, "Write a sample configuration file and exit")
	flag.Parse()

	if *createConfig {
		if scaffoldErr := writeSampleConfig(*configFilePath); scaffoldErr != nil {
			fmt.Fprintf(os.Stderr, "Error creating sample config: %s\n", scaffoldErr)
			os.Exit(1)
		}
		fmt.Printf("Sample configuration written to %s. Edit it before running a sync.\n", *configFilePath)
		return
	}

	var appConfig AppConfig
	configErr := configor.Load(&appConfig, *configFilePath)
	if configErr != nil {
		panic(configErr)
	}
	if *workerOverride > 0 {
		appConfig.Workers = *workerOverride
	}
	if validateErr := appConfig.Validate(); validateErr != nil {
		panic(validateErr)
	}

	logLevel, levelErr := log.ParseLevel(appConfig.LogLevel)
	if levelErr != nil {
		panic(fmt.Errorf("Unknown log level %q: %s\n", appConfig.LogLevel, levelErr))
	}
	log.SetLevel(logLevel)

	log.Info("Configuration:")
	for _, line := range appConfig.ConfigStringArray() {
		log.Info(line)
	}

	client := NewDolphinClient(appConfig)

	if *testConnection {
		if probeErr := client.TestConnection(); probeErr != nil {
			log.Error(fmt.Sprintf("Connection test failed: %s", probeErr))
			os.Exit(1)
		}
		log.Info("Connection test succeeded.")
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: dssync [flags] <directory>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	root := flag.Arg(0)

	var notifier Notifier
	if appConfig.Notify.Topic != "" {
		var notifierErr error
		notifier, notifierErr = NewSNSNotifier(appConfig)
		if notifierErr != nil {
			panic(fmt.Errorf("Error creating SNS notifier: %s\n", notifierErr))
		}
	}

	if *watchMode {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if watchErr := runWatch(ctx, root, appConfig, client, notifier); watchErr != nil {
			log.Error(fmt.Sprintf("Watch error: %s", watchErr))
			os.Exit(1)
		}
		return
	}

	lock := &sync.Mutex{}
	summary, runErr := runBatchUpload(root, appConfig, client, notifier, lock)
	if runErr != nil {
		log.Error(fmt.Sprintf("Sync error: %s", runErr))
		os.Exit(1)
	}
	if summary.FailedCount > 0 {
		os.Exit(1)
	}
}
