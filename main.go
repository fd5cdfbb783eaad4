package main

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/cmd/executor"
)

const appName = "fxscheduler"

func main() {
	_ = godotenv.Load()
	executor.SetupLogger(executor.GetConfig())
	defer handlePanic()

	e := &executor.Executor{}
	if err := e.Start(); err != nil {
		logger.WithError(err).Error("Scheduler stopped with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", appName))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
