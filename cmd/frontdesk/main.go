package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/montroyal-labs/frontdesk/src/collaborators"
	"github.com/montroyal-labs/frontdesk/src/config"
	"github.com/montroyal-labs/frontdesk/src/logger"
	"github.com/montroyal-labs/frontdesk/src/outcome"
	"github.com/montroyal-labs/frontdesk/src/session"
	"github.com/montroyal-labs/frontdesk/src/supervisor"
	"github.com/montroyal-labs/frontdesk/src/telephony"
)

func main() {
	logger.Init()
	log := logger.WithPrefix("Main")

	cfg, err := config.Load()
	if err != nil {
		log.Error("Configuration error: %v", err)
		os.Exit(1)
	}

	calendar, err := collaborators.NewCalendarClient(collaborators.CalendarConfig{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CalendarID:      cfg.CalendarID,
		AgentEmail:      cfg.AgentEmail,
	})
	if err != nil {
		log.Error("Calendar client error: %v", err)
		os.Exit(1)
	}

	sheets, err := collaborators.NewSheetsClient(collaborators.SheetsConfig{
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		SheetID:         cfg.SheetID,
	})
	if err != nil {
		log.Error("Sheets client error: %v", err)
		os.Exit(1)
	}

	twilio := collaborators.NewTwilioClient(collaborators.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		AgentPhone: cfg.AgentPhone,
	})

	store := session.NewStore()
	recorder := outcome.NewRecorder(calendar, twilio, sheets, outcome.DefaultRetryPolicy())
	sup := supervisor.New(cfg, store, recorder, twilio, nil)

	server := telephony.NewServer(telephony.ServerConfig{
		Port:       cfg.Port,
		PublicHost: cfg.PublicHost,
		AgentName:  cfg.AgentName,
	}, sup)

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		log.Error("Server start error: %v", err)
		os.Exit(1)
	}
	log.Info("Front desk up for %s (%s model)", cfg.AgentName, cfg.ModelProvider)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("Shutdown error: %v", err)
	}
}
