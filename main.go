package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"

	"github.com/addspin/certgate/certauth"
	Controllers "github.com/addspin/certgate/controllers"
	"github.com/addspin/certgate/middleware"
	"github.com/addspin/certgate/models"
	"github.com/addspin/certgate/routes"
	"github.com/addspin/certgate/store"
	"github.com/addspin/certgate/users"
	"github.com/addspin/certgate/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// siteConfig exposes the site section of config.yaml to the binder.
type siteConfig struct{}

func (siteConfig) Get(key string) string { return viper.GetString("site." + key) }

func main() {

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		log.Fatalf("Error reading config file: %s", err)
	}

	logFile, err := utils.SetupSlogLogger()
	if err != nil {
		log.Fatalf("Error configuring logger: %s", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger := slog.Default()

	database := viper.GetString("database.path")

	// Database inicialization
	db, err := sqlx.Open("sqlite3", database)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Connected to database: ", database)
	defer db.Close()

	db.MustExec(models.UsersSchema)

	// Binding store
	rdb := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
	defer rdb.Close()

	// Trust configuration, built once and passed in explicitly
	var regCfg certauth.RegistryConfig
	if err := viper.UnmarshalKey("auth", &regCfg); err != nil {
		log.Fatalf("Error reading auth config: %s", err)
	}
	registry, err := certauth.NewRegistry(regCfg)
	if err != nil {
		log.Fatalf("Error building issuer registry: %s", err)
	}

	verifier := certauth.NewVerifier(registry, logger)
	checker := certauth.NewRevocationChecker(registry, certauth.OpenSSLTool{}, logger)
	binder := certauth.NewBinder(users.NewSqliteDirectory(db), store.NewRedisBindings(rdb), siteConfig{}, logger)
	authenticator := certauth.NewAuthenticator(verifier, checker, binder, logger)

	clientCert := Controllers.NewClientCertController(authenticator, binder, logger)

	// Create a new engine Template
	engine := html.New("./template", ".html")

	// Pass the engine to the Views
	app := fiber.New(fiber.Config{
		Views: engine,
	})

	app.Use(middleware.AuthMiddleware())
	routes.Setup(app, clientCert)

	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = ":3000"
	}

	if viper.GetBool("server.tls.enabled") {
		ln, err := clientCertListener(addr, regCfg)
		if err != nil {
			log.Fatalf("Error creating TLS listener: %s", err)
		}
		log.Fatal(app.Listener(ln))
	}
	log.Fatal(app.Listen(addr))
}

// clientCertListener terminates TLS locally and requests (but does not
// require) a client certificate; the policy decision belongs to the
// certauth pipeline, not the handshake.
func clientCertListener(addr string, regCfg certauth.RegistryConfig) (net.Listener, error) {
	serverCert, err := tls.LoadX509KeyPair(
		viper.GetString("server.tls.cert_file"),
		viper.GetString("server.tls.key_file"))
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}

	pool := x509.NewCertPool()
	for _, issuer := range regCfg.TrustedIssuers {
		pemBytes, err := os.ReadFile(issuer.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate %s: %w", issuer.CACertFile, err)
		}
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificates found in %s", issuer.CACertFile)
		}
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(ln, tlsCfg), nil
}
