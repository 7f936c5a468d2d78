// atcloud-device runs an atCloud365 input or output device: it
// authenticates once, keeps a real-time session open and serves remote
// commands until it is interrupted or told to reboot.
//
// Exit status is 0 after a shutdown signal or a reboot command and 1 when
// the configuration is invalid or authentication fails.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/gateways/atcloud"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/gateways/atcloud/network"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/logging"
	"github.com/janael-pinheiro/atcloud-device-sdk-golang/pkg/utils"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, variant, logLevel, transport string

	flagSet := pflag.NewFlagSet("atcloud-device", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", utils.GetValueFromEnvironmentVariable("DEVICE_CONFIG_FILEPATH", ""), "path to the yaml configuration file")
	flagSet.StringVar(&variant, "variant", "", "device variant: input or output")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.StringVar(&transport, "transport", "", "real-time transport: socketio or amqp")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	config, err := utils.LoadDeviceConfig(configPath)
	if err != nil {
		return err
	}
	if variant != "" {
		config.Device.Variant = entities.Variant(variant)
	}
	if logLevel != "" {
		config.Log.Level = logLevel
	}
	if transport != "" {
		config.Server.Transport = transport
	}
	if err := config.Validate(); err != nil {
		return err
	}

	logger := logging.NewLogrus(config.Log.Level, os.Stdout).
		WithFormat(config.Log.Format).
		WithField("sn", config.Device.SerialNumber)
	log := logger.Get("main")

	identity := config.Identity()
	log.Infof("Starting %s device: %s (%d channels)", config.Device.Variant, identity, len(identity.ChannelIDs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authCtx, cancelAuth := context.WithTimeout(ctx, config.Server.AuthTimeout())
	auth := atcloud.NewAuthClient(config.Server.AuthURI, config.Server.AuthTimeout(), nil, logger.Get("auth"))
	token, err := auth.Authenticate(authCtx, identity)
	cancelAuth()
	if err != nil {
		log.Error(err)
		return err
	}

	session := atcloud.NewSession(newTransport(config, logger), logger.Get("session"))
	device := atcloud.NewDevice(
		atcloud.NewDeviceOptions(config),
		session,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		logger.Get("device"),
	)
	if err := device.Run(ctx, token); err != nil {
		log.Error(err)
		return err
	}
	log.Info("Bye")
	return nil
}

func newTransport(config entities.DeviceConfig, logger *logging.Logrus) network.Transport {
	reconnect := network.DefaultReconnectPolicy()
	if config.Server.ReconnectionAttempts > 0 {
		reconnect.Attempts = config.Server.ReconnectionAttempts
	}
	if config.Server.ReconnectionDelayMs > 0 {
		reconnect.Delay = config.Server.ReconnectionDelay()
	}
	if config.Server.Transport == entities.TransportAMQP {
		filter := network.NewDuplicateFilter(network.FilterCapacity, network.DuplicationProbability, network.ResetFilterUsagePercentage)
		return network.NewAMQP(config.Server.AMQPURL, reconnect, filter, logger.Get("amqp"))
	}
	return network.NewSocketIO(network.SocketIOOptions{
		URL:        config.Server.URL,
		Path:       config.Server.APIPath,
		Transports: config.Server.Transports,
		Reconnect:  reconnect,
	}, logger.Get("socketio"))
}
