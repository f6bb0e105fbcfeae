package main

import (
	"TCCTransaction/config"
	"TCCTransaction/log"
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliConfig 所有子命令共享的配置与存储连接
type cliConfig struct {
	v    *viper.Viper
	path string

	cfg *config.Config
	res *config.Resources
}

func newRootCommand() *cobra.Command {
	cc := &cliConfig{v: viper.New()}
	cmd := &cobra.Command{
		Use:          "tccctl",
		Short:        "Inspect and repair TCC transaction records",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cc.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cc.path, "config", "c", "", "path to a YAML config file")
	flags.String("repository", "", "repository type (memory|mysql|redis)")
	flags.String("dsn", "", "mysql DSN")
	flags.String("redis-address", "", "redis address host:port")
	flags.String("redis-prefix", "", "redis key prefix")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	bindFlags(cc.v, flags, map[string]string{
		"repository.type":          "repository",
		"repository.dsn":           "dsn",
		"repository.redis.address": "redis-address",
		"repository.redis.prefix":  "redis-prefix",
		"log.level":                "log-level",
	})

	cmd.AddCommand(
		newListCommand(cc),
		newShowCommand(cc),
		newAbandonCommand(cc),
		newResetCommand(cc),
		newMigrateCommand(cc),
	)
	return cmd
}

// bindFlags 只在命令行显式指定时覆盖配置文件与环境变量
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (cc *cliConfig) load() error {
	cfg, err := config.LoadFromViper(cc.v, cc.path)
	if err != nil {
		return err
	}
	log.Init(cfg.Log.Options())
	cc.cfg = cfg
	return nil
}

func (cc *cliConfig) resources(ctx context.Context) (*config.Resources, error) {
	if cc.res != nil {
		return cc.res, nil
	}
	res, err := cc.cfg.OpenResources(ctx)
	if err != nil {
		return nil, err
	}
	cc.res = res
	return res, nil
}

func (cc *cliConfig) cleanup() error {
	if cc.res == nil {
		return nil
	}
	err := cc.res.Close()
	cc.res = nil
	return err
}
