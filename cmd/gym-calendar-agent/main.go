package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"gym-calendar-agent/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
