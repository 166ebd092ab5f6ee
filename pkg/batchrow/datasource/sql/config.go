package sql

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-sql-driver/mysql"

	"github.com/sllt/batchrow/pkg/batchrow/config"
)

const (
	defaultMySQLPort    = "3306"
	defaultPostgresPort = "5432"
	defaultSSLMode      = "disable"
	sqliteBusyTimeout   = 5 * time.Second
)

var errInvalidDBConfig = errors.New("invalid database configuration")

// DBConfig holds what is needed to reach the backing store: the credential triple (data source, user, password)
// plus dialect specific connection details.
type DBConfig struct {
	Dialect     string `env:"DB_DIALECT" validate:"required,oneof=mysql postgres sqlite"`
	HostName    string `env:"DB_HOST" validate:"required_unless=Dialect sqlite"`
	User        string `env:"DB_USER" validate:"required_unless=Dialect sqlite"`
	Password    string `env:"DB_PASSWORD"`
	Port        string `env:"DB_PORT" validate:"omitempty,number"`
	Database    string `env:"DB_NAME" validate:"required"`
	SSLMode     string `env:"DB_SSL_MODE" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxIdleConn int    `env:"DB_MAX_IDLE_CONNECTION" validate:"gte=0"`
	MaxOpenConn int    `env:"DB_MAX_OPEN_CONNECTION" validate:"gte=0"`
}

// NewDBConfig reads the DB_* keys from c. Unknown dialects are kept as given so Validate can report them.
func NewDBConfig(c config.Config) *DBConfig {
	dialect := c.Get("DB_DIALECT")
	if d, err := NormalizeDialect(dialect); err == nil {
		dialect = d
	}

	maxIdle, _ := strconv.Atoi(c.GetOrDefault("DB_MAX_IDLE_CONNECTION", "2"))
	maxOpen, _ := strconv.Atoi(c.GetOrDefault("DB_MAX_OPEN_CONNECTION", "0"))

	return &DBConfig{
		Dialect:     dialect,
		HostName:    c.Get("DB_HOST"),
		User:        c.Get("DB_USER"),
		Password:    c.Get("DB_PASSWORD"),
		Port:        c.Get("DB_PORT"),
		Database:    c.Get("DB_NAME"),
		SSLMode:     c.GetOrDefault("DB_SSL_MODE", defaultSSLMode),
		MaxIdleConn: maxIdle,
		MaxOpenConn: maxOpen,
	}
}

//nolint:gochecknoglobals // the validator caches struct metadata and is safe for concurrent use.
var (
	validatorOnce sync.Once
	validate      *validator.Validate
	translator    ut.Translator
)

func dbValidator() (*validator.Validate, ut.Translator) {
	validatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")

		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if name := fld.Tag.Get("env"); name != "" {
				return name
			}

			return fld.Name
		})

		_ = entranslations.RegisterDefaultTranslations(validate, translator)
	})

	return validate, translator
}

// Validate reports every invalid field at once, named after its configuration key.
func (c *DBConfig) Validate() error {
	v, trans := dbValidator()

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
	}

	return fmt.Errorf("%w: %s", errInvalidDBConfig, strings.Join(msgs, "; "))
}

func (c *DBConfig) driverName() string {
	return c.Dialect
}

// DSN builds the driver specific data source name. MySQL reports matched rows as affected, like the other
// dialects.
func (c *DBConfig) DSN() (string, error) {
	switch c.Dialect {
	case DialectMySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.User
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(c.HostName, orDefault(c.Port, defaultMySQLPort))
		cfg.DBName = c.Database
		cfg.ParseTime = true
		cfg.ClientFoundRows = true

		return cfg.FormatDSN(), nil
	case DialectPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.HostName, orDefault(c.Port, defaultPostgresPort)),
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": {orDefault(c.SSLMode, defaultSSLMode)}}.Encode(),
		}

		return u.String(), nil
	case DialectSQLite:
		name := strings.TrimPrefix(c.Database, "file:")

		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", name, sqliteBusyTimeout.Milliseconds()), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, c.Dialect)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
