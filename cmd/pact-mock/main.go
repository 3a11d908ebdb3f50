package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
	log "github.com/sirupsen/logrus"
)

func main() {
	config, err := configuration.NewFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	manager := configuration.NewManager(config)

	log.Infof("admin api listening on port %d", config.AdminPort)
	adminServer := configuration.ServeAdminAPI(config.AdminPort, manager)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	if err := adminServer.Close(); err != nil {
		log.Error(err)
	}

	if err := manager.CloseAll(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
