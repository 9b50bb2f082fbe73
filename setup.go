package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	aws "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/michaldziwisz/sygnalista/gh"
)

const (
	defaultRateLimitPerMinute = 6
	defaultMaxLogBase64Len    = 8_000_000
	defaultIntakeBranch       = "main"
)

type Config struct {
	Port    int    `json:"port" paramName:"SYG_PORT"`
	LogFile string `json:"logFile" paramName:"SYG_LOGFILE"`

	// AppRepoMap is a JSON object mapping app.id -> "owner/repo"; parsed
	// lazily so a malformed value surfaces as a configuration error at
	// first use, not at startup.
	AppRepoMap   string `json:"appRepoMap" paramName:"SYG_APP_REPO_MAP"`
	IntakeRepo   string `json:"intakeRepo" paramName:"SYG_INTAKE_REPO"`
	IntakeBranch string `json:"intakeBranch" paramName:"SYG_INTAKE_BRANCH"`

	GitHub gh.Secrets `json:"github"`

	// AppTokenMap is a JSON object mapping app.id -> shared secret.
	AppTokenMap string `json:"appTokenMap" paramName:"SYG_APP_TOKEN_MAP,secret"`

	RateLimitPerMinute int `json:"rateLimitPerMinute" paramName:"SYG_RATE_LIMIT_PER_MINUTE"`
	MaxLogBase64Length int `json:"maxLogBase64Length" paramName:"SYG_MAX_LOG_BASE64_LENGTH"`

	TelegramBotToken string `json:"telegramBotToken" paramName:"SYG_TELEGRAM_BOT_TOKEN,secret"`
	TelegramChatIDs  string `json:"telegramChatIDs" paramName:"SYG_TELEGRAM_CHAT_IDS"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogFile == "" {
		c.LogFile = "stderr"
	}
	if c.IntakeBranch == "" {
		c.IntakeBranch = defaultIntakeBranch
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	if c.MaxLogBase64Length == 0 {
		c.MaxLogBase64Length = defaultMaxLogBase64Len
	}
}

// ParseAppRepoMap decodes the app.id -> owner/repo routing table.
func (c *Config) ParseAppRepoMap() (map[string]string, error) {
	m, err := parseJSONMap(c.AppRepoMap)
	if err != nil {
		return nil, errors.New("invalid appRepoMap (expected JSON object mapping appId->owner/repo)")
	}
	return m, nil
}

// ParseAppTokenMap decodes the per-app shared secrets; an empty value
// means no app requires a token.
func (c *Config) ParseAppTokenMap() (map[string]string, error) {
	if c.AppTokenMap == "" {
		return nil, nil
	}
	m, err := parseJSONMap(c.AppTokenMap)
	if err != nil {
		return nil, errors.New("invalid appTokenMap (expected JSON object mapping appId->token)")
	}
	return m, nil
}

// IntakeTarget resolves the artifact-storage repository.
func (c *Config) IntakeTarget() (gh.Repo, error) {
	repo, err := gh.ParseRepoRef(c.IntakeRepo)
	if err != nil {
		return gh.Repo{}, errors.Wrap(err, "invalid intakeRepo")
	}
	return repo, nil
}

// parseJSONMap decodes a JSON object of strings; non-string values are
// dropped, non-object payloads are errors.
func parseJSONMap(raw string) (map[string]string, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.New("not a JSON object")
	}
	m := make(map[string]string, len(obj))
	for k, val := range obj {
		if s, ok := val.(string); ok {
			m[k] = s
		}
	}
	return m, nil
}

// ReadConfigFromFile reads a config.json file into a Config struct.
func ReadConfigFromFile(fp string) (Config, error) {
	cfg := Config{}
	fd, err := os.Open(fp)
	if err != nil {
		return cfg, err
	}
	if err = json.NewDecoder(fd).Decode(&cfg); err != nil {
		_ = fd.Close()
		return cfg, err
	}
	if err := fd.Close(); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// ReadConfigFromEnv fills a Config from the process environment (plus an
// optional .env file), using the paramName tags as variable names.
func ReadConfigFromEnv() (Config, error) {
	_ = godotenv.Load() // a missing .env file is fine
	cfg := Config{}
	if err := fillTagged(&cfg, func(name string, _ bool) (string, bool, error) {
		v, ok := os.LookupEnv(name)
		return v, ok, nil
	}); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromParamStore fills a Config from AWS SSM Parameter Store, with
// secret-tagged fields fetched decrypted.
func LoadFromParamStore(sesh *aws.Session) (Config, error) {
	svc := ssm.New(sesh)
	cfg := Config{}
	if err := fillTagged(&cfg, func(name string, secret bool) (string, bool, error) {
		param, err := svc.GetParameter(&ssm.GetParameterInput{
			Name:           &name,
			WithDecryption: &secret,
		})
		if err != nil {
			return "", false, err
		}
		return *param.Parameter.Value, true, nil
	}); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// fillTagged walks paramName-tagged fields (nested structs included) and
// fills them via lookup. String values go through the stdlib unmarshal so
// numeric fields need no bespoke reflection.
func fillTagged(v interface{}, lookup func(name string, secret bool) (string, bool, error)) error {
	if reflect.ValueOf(v).Kind() != reflect.Ptr {
		return errors.New("fillTagged requires a pointer to a tagged destination structure")
	}
	temp := map[string]interface{}{}
	if err := collectTagged(reflect.TypeOf(v).Elem(), lookup, temp); err != nil {
		return err
	}
	b, err := json.Marshal(temp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func collectTagged(t reflect.Type, lookup func(string, bool) (string, bool, error), out map[string]interface{}) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		jsonTag := strings.Split(field.Tag.Get("json"), ",")[0]
		if field.Type.Kind() == reflect.Struct && field.Tag.Get("paramName") == "" {
			nested := map[string]interface{}{}
			if err := collectTagged(field.Type, lookup, nested); err != nil {
				return err
			}
			if len(nested) > 0 && jsonTag != "" {
				out[jsonTag] = nested
			}
			continue
		}
		tag := field.Tag.Get("paramName")
		if tag == "" || jsonTag == "" {
			continue
		}
		name, secret := tag, false
		if strings.Contains(tag, ",secret") {
			name, secret = strings.Split(tag, ",")[0], true
		}
		val, ok, err := lookup(name, secret)
		if err != nil {
			return err
		}
		if !ok || val == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			out[jsonTag] = val
		} else {
			// Numeric fields: let json decode the literal.
			out[jsonTag] = json.RawMessage(val)
		}
	}
	return nil
}

func StartLogger(fp string) (*log.Logger, error) {
	var logger *log.Logger
	if strings.ToLower(fp) == "stderr" || fp == "2" {
		logger = log.New(os.Stderr, "sygnalista: ", log.LstdFlags|log.Lshortfile)
	} else if strings.ToLower(fp) == "stdout" || fp == "1" {
		logger = log.New(os.Stdout, "sygnalista: ", log.LstdFlags|log.Lshortfile)
	} else {
		logFile, err := os.OpenFile(fp, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		logger = log.New(logFile, filepath.Base(fp)+": ", log.LstdFlags|log.Lshortfile)
	}
	return logger, nil
}
