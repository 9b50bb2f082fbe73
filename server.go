package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"

	aws "github.com/aws/aws-sdk-go/aws/session"

	"github.com/michaldziwisz/sygnalista/failure"
	"github.com/michaldziwisz/sygnalista/gh"
	"github.com/michaldziwisz/sygnalista/notify"
	"github.com/michaldziwisz/sygnalista/ratelimit"
)

func main() {
	var (
		err error
		cfg Config
	)
	cfgPath, fromEnv, fromSSM := parseCL()
	switch {
	case fromSSM:
		sesh, serr := aws.NewSession()
		if serr != nil {
			fmt.Fprintf(os.Stderr, "Server failed to open AWS session: %+v\n", serr.Error())
			os.Exit(1)
		}
		cfg, err = LoadFromParamStore(sesh)
	case fromEnv:
		cfg, err = ReadConfigFromEnv()
	default:
		cfg, err = ReadConfigFromFile(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server failed to read configuration: %+v\n", err.Error())
		os.Exit(1)
	}

	logger, err := StartLogger(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server failed to start logger: %+v\n", err.Error())
		os.Exit(1)
	}
	logger.Print("logger started.")

	failure.Init(logger)
	logger.Println("initialized failure handler.")

	ghs := gh.New(cfg.GitHub, logger)
	logger.Println("initialized github subservice.")

	limiter := ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimitPerMinute)
	sink := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatIDs, logger)

	r := NewRouter(NewIntake(&cfg, limiter, ghs, sink, logger))
	logger.Println("router created, starting server...")

	if err := http.ListenAndServe(":"+strconv.Itoa(cfg.Port), r); err != nil {
		if err != http.ErrServerClosed {
			logger.Panic(err)
		} else {
			logger.Println("server shutdown complete.")
		}
	}
}

func parseCL() (cfgPath string, fromEnv, fromSSM bool) {
	flag.Usage = func() {
		flag.PrintDefaults()
	}
	flag.StringVar(&cfgPath, "c", "config.json", "Path to config.json")
	flag.BoolVar(&fromEnv, "e", false, "Load configuration from the environment (and .env) instead of a file")
	flag.BoolVar(&fromSSM, "ssm", false, "Load configuration from AWS SSM Parameter Store")
	flag.Parse()
	return cfgPath, fromEnv, fromSSM
}
