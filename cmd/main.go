package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeexecutor/cmd/executor"
	"tradeexecutor/src/broker"
	"tradeexecutor/src/database"
	"tradeexecutor/src/security"
	"tradeexecutor/src/server"
)

var Version string

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("No .env file loaded")
	}

	app := cli.NewApp()
	app.Name = "Trade Executor CMD"
	app.Usage = "The trade executor command line interface"

	app.Commands = []cli.Command{
		executorCMD,
		serverCMD,
		keysCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the signal execution loop`,
	}
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run Health Server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the health/status HTTP server`,
	}
	keysCMD = cli.Command{
		Name:        "keys",
		Usage:       "generate or encrypt broker credentials",
		Action:      keysAction,
		ArgsUsage:   "[value-to-encrypt]",
		Flags:       []cli.Flag{},
		Description: `Without arguments prints a fresh credentials key; with one argument encrypts it with the configured key`,
	}
)

func executorAction(_ *cli.Context) error {

	logrus.Info("Starting executor CMD")
	logrus.WithField("cmd", "executor")

	exec := &executor.Executor{}
	err := exec.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
	}
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
	}

	venue, err := broker.Build()
	if err != nil {
		logrus.WithError(err).Error("Failed to build broker")
		return err
	}

	server.StartServer(server.GetConfig().Port, venue)
	return nil
}

func keysAction(c *cli.Context) error {

	if c.NArg() == 0 {
		key, err := security.GenerateKeyString()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	}

	encrypted, err := security.EncryptString(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(encrypted)
	return nil
}
