package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/localnerve/reportdesk/internal/testenv"
)

const usage = `
Start the reportdesk Postgres and Redis testcontainers and print the server environment for them.

Usage:

testcontainers [-h] [-f ENV_FILE_PATH] [-o OUT_FILE_PATH]

ENV_FILE_PATH: .env file read before starting (image and credential overrides)
OUT_FILE_PATH: .env file written with the settings a server needs to use the containers

example
  testcontainers -f ./testenv.env -o ./.env.local
`

// serverEnv is the environment cmd/server needs to run against the containers
func serverEnv(tc *testenv.Containers) map[string]string {
	cfg := tc.Config()
	env := map[string]string{
		"BACKEND_MODE":      "database",
		"IDENTITY_PROVIDER": "local",
		"DB_TYPE":           cfg.DBType,
		"DB_HOST":           cfg.DBHost,
		"DB_PORT":           cfg.DBPort,
		"DB_DATABASE":       cfg.DBDatabase,
		"DB_USER":           cfg.DBUser,
		"DB_PASSWORD":       cfg.DBPassword,
	}
	if tc.RedisAddr != "" {
		env["REDIS_ADDR"] = tc.RedisAddr
	}
	return env
}

func main() {
	showHelp := flag.Bool("h", false, "show help")
	envFilename := flag.String("f", "", "path to the .env file to load")
	outFilename := flag.String("o", "", "path of the .env file to write")
	flag.Parse()

	if *showHelp {
		fmt.Print(usage, "\n")
		return
	}

	if *envFilename != "" {
		log.Printf("Loading environment variables from %s\n", *envFilename)
		if err := godotenv.Load(*envFilename); err != nil {
			log.Fatalf("Failed to load environment variables: %v\n", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	tc, err := testenv.Start(nil)
	if err != nil {
		log.Fatalf("Failed to create test containers: %v\n", err)
	}

	env := serverEnv(tc)
	if *outFilename != "" {
		if err := godotenv.Write(env, *outFilename); err != nil {
			log.Printf("Failed to write %s: %v\n", *outFilename, err)
		} else {
			log.Printf("Wrote server environment to %s\n", *outFilename)
		}
	}
	out, err := godotenv.Marshal(env)
	if err == nil {
		fmt.Println(out)
	}

	sig := <-sigs
	log.Printf("Received signal: %v, terminating test containers...\n", sig)
	tc.Terminate(nil)
}
