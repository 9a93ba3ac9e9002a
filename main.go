package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mrp/internal/auth"
	"mrp/internal/config"
	"mrp/internal/database"
	"mrp/internal/server"
)

const usage = `usage: mrp [-config file] <command> [flags]

commands:
  serve      run the HTTP API (default)
  migrate    create or upgrade the database schema
  user add   create a user: -username -password [-first -last -role]
  token      print a bearer token: -username -password
`

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := cfg.NewLogger()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg, log)
	case "migrate":
		err = migrate(cfg, log)
	case "user":
		if len(args) == 0 || args[0] != "add" {
			flag.Usage()
			os.Exit(2)
		}
		err = addUser(cfg, args[1:])
	case "token":
		err = printToken(cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal(cmd + " failed")
	}
}

func serve(cfg *config.Config, log *logrus.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	app := server.New(cfg, db, log, auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Environment}).Info("mrp server starting")
		errc <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func migrate(cfg *config.Config, log *logrus.Logger) error {
	// Open applies the schema.
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	log.WithField("db", cfg.DBPath).Info("schema up to date")
	return db.Close()
}

func addUser(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "password, at least 8 characters")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	role := fs.String("role", auth.RoleUser, "user or manager")
	fs.Parse(args)

	if *username == "" {
		return errors.New("-username is required")
	}
	if *role != auth.RoleUser && *role != auth.RoleManager {
		return fmt.Errorf("unknown role %q", *role)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := auth.CreateUser(context.Background(), db, auth.NewUser{
		Username:  *username,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
		Role:      *role,
	})
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("user %q already exists", *username)
	}
	if err != nil {
		return err
	}
	fmt.Printf("created user %s (id %d, role %s)\n", *username, id, *role)
	return nil
}

func printToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	username := fs.String("username", "", "login name")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := auth.CheckPassword(context.Background(), db, *username, *password)
	if err != nil {
		return err
	}
	token, err := auth.NewJWT(cfg.JWTSecret, cfg.TokenTTL).Issue(id)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
