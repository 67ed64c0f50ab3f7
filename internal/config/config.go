// Package config loads TLD policies from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/and161185/tld-registry/internal/model"
)

const envPrefix = "REGISTRY"

const day = 24 * time.Hour

// Defaults applied to lifecycle lengths left unset.
const (
	DefaultAddGrace          = 5 * day
	DefaultRenewGrace        = 5 * day
	DefaultAutoRenewGrace    = 45 * day
	DefaultTransferGrace     = 5 * day
	DefaultRedemptionGrace   = 30 * day
	DefaultPendingDelete     = 5 * day
	DefaultAutomaticTransfer = 5 * day
)

// Transition is one fee schedule entry. An empty From means the beginning of time.
type Transition struct {
	From string `mapstructure:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Cost string `mapstructure:"cost" validate:"required,numeric"`
}

// TLD is the YAML shape of one TLD policy.
type TLD struct {
	Currency     string            `mapstructure:"currency" validate:"required,iso4217"`
	Create       []Transition      `mapstructure:"create" validate:"required,min=1,dive"`
	Renew        []Transition      `mapstructure:"renew" validate:"required,min=1,dive"`
	Restore      []Transition      `mapstructure:"restore" validate:"required,min=1,dive"`
	ServerStatus []Transition      `mapstructure:"server_status" validate:"required,min=1,dive"`
	EAP          []Transition      `mapstructure:"eap" validate:"omitempty,dive"`
	Premium      map[string]string `mapstructure:"premium" validate:"omitempty,dive,keys,required,endkeys,numeric"`

	AddGrace          time.Duration `mapstructure:"add_grace" validate:"gte=0"`
	RenewGrace        time.Duration `mapstructure:"renew_grace" validate:"gte=0"`
	AutoRenewGrace    time.Duration `mapstructure:"autorenew_grace" validate:"gte=0"`
	TransferGrace     time.Duration `mapstructure:"transfer_grace" validate:"gte=0"`
	RedemptionGrace   time.Duration `mapstructure:"redemption_grace" validate:"gte=0"`
	PendingDelete     time.Duration `mapstructure:"pending_delete" validate:"gte=0"`
	AutomaticTransfer time.Duration `mapstructure:"automatic_transfer" validate:"gte=0"`
}

// File is the root of the config document.
type File struct {
	TLDs map[string]TLD `mapstructure:"tlds" validate:"required,min=1,dive,keys,required,lowercase,endkeys"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML file. Values may be overridden from REGISTRY_* environment variables.
func Load(path string) (map[string]model.Tld, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// Read parses YAML from r.
func Read(r io.Reader) (map[string]model.Tld, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (map[string]model.Tld, error) {
	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid config: %w", describe(err))
	}
	out := make(map[string]model.Tld, len(f.TLDs))
	for name, c := range f.TLDs {
		t, err := c.toModel(name)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

func describe(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (c TLD) toModel(name string) (model.Tld, error) {
	t := model.Tld{
		Name:                    name,
		Currency:                c.Currency,
		AddGracePeriod:          orDefault(c.AddGrace, DefaultAddGrace),
		RenewGracePeriod:        orDefault(c.RenewGrace, DefaultRenewGrace),
		AutoRenewGracePeriod:    orDefault(c.AutoRenewGrace, DefaultAutoRenewGrace),
		TransferGracePeriod:     orDefault(c.TransferGrace, DefaultTransferGrace),
		RedemptionGracePeriod:   orDefault(c.RedemptionGrace, DefaultRedemptionGrace),
		PendingDeletePeriod:     orDefault(c.PendingDelete, DefaultPendingDelete),
		AutomaticTransferLength: orDefault(c.AutomaticTransfer, DefaultAutomaticTransfer),
	}
	var err error
	schedules := []struct {
		name string
		in   []Transition
		out  *model.Schedule
	}{
		{"create", c.Create, &t.CreateCost},
		{"renew", c.Renew, &t.RenewCost},
		{"restore", c.Restore, &t.RestoreCost},
		{"server_status", c.ServerStatus, &t.ServerStatusCost},
		{"eap", c.EAP, &t.EapFee},
	}
	for _, s := range schedules {
		if *s.out, err = schedule(c.Currency, s.in); err != nil {
			return model.Tld{}, fmt.Errorf("tld %s: %s: %w", name, s.name, err)
		}
	}
	if len(c.Premium) > 0 {
		t.PremiumPrices = make(map[string]model.Money, len(c.Premium))
		for label, amount := range c.Premium {
			m, err := model.NewMoney(c.Currency, amount)
			if err != nil {
				return model.Tld{}, fmt.Errorf("tld %s: premium %s: %w", name, label, err)
			}
			t.PremiumPrices[label] = m
		}
	}
	if err := t.Validate(); err != nil {
		return model.Tld{}, err
	}
	return t, nil
}

func schedule(cur string, in []Transition) (model.Schedule, error) {
	if len(in) == 0 {
		return model.Flat(model.Zero(cur)), nil
	}
	ts := make([]model.Transition, 0, len(in))
	for _, tr := range in {
		start := model.StartOfTime
		if tr.From != "" {
			var err error
			if start, err = time.Parse(time.RFC3339, tr.From); err != nil {
				return nil, fmt.Errorf("from %q: %w", tr.From, err)
			}
		}
		cost, err := model.NewMoney(cur, tr.Cost)
		if err != nil {
			return nil, err
		}
		ts = append(ts, model.Transition{Start: start.UTC(), Cost: cost})
	}
	return model.NewSchedule(ts...), nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
