package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"insiderr-api/internal/app"
	"insiderr-api/internal/domain"
	"insiderr-api/internal/infra/config"
	applog "insiderr-api/internal/infra/log"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "maintenance")

	cmd := &cli.Command{
		Name:  "maintenance",
		Usage: "Административные операции над хранилищем",
		Commands: []*cli.Command{
			{
				Name:      "create-channel",
				Usage:     "Создать канал с заданным заголовком",
				ArgsUsage: "<title>",
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					ch, err := a.Channels.Ensure(ctx, c.Args().First())
					if err != nil {
						return err
					}
					fmt.Printf("%s\t%s\n", ch.Key, ch.Title)
					return nil
				}),
			},
			{
				Name:  "list-channels",
				Usage: "Показать все каналы",
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, _ *cli.Command) error {
					list, err := a.Channels.List(ctx)
					if err != nil {
						return err
					}
					for _, ch := range list {
						fmt.Printf("%s\t%s\n", ch.Key, ch.Title)
					}
					return nil
				}),
			},
			{
				Name:      "delete-post",
				Usage:     "Удалить пост вместе с комментариями, голосами и записями журнала",
				ArgsUsage: "<post-key>",
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					key := c.Args().First()
					if key == "" {
						return errors.New("не указан ключ поста")
					}
					return a.Posts.DeletePost(ctx, key)
				}),
			},
			{
				Name:  "purge-updates",
				Usage: "Удалить записи журнала каналов старше заданного возраста",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Value: 30 * 24 * time.Hour,
						Usage: "Возраст записей, начиная с которого они удаляются",
					},
				},
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					before := domain.Timestamp(time.Now().Add(-c.Duration("older-than")))
					n, err := a.Store.DeleteUpdatesBefore(ctx, before)
					if err != nil {
						return err
					}
					logger.Info().Int64("deleted", n).Time("before", before).Msg("maintenance: журнал очищен")
					return nil
				}),
			},
			{
				Name:  "reconcile-votes",
				Usage: "Привести число голосов пользователя за сущность к заданному значению",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "entity", Usage: "Ключ поста или комментария", Required: true},
					&cli.StringFlag{Name: "user", Usage: "ID пользователя", Required: true},
					&cli.StringFlag{Name: "direction", Value: "up", Usage: "up или down"},
					&cli.IntFlag{Name: "count", Value: 1, Usage: "Желаемое число голосов"},
				},
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					dir, ok := domain.ParseDirection(c.String("direction"))
					if !ok {
						return fmt.Errorf("неизвестное направление %q", c.String("direction"))
					}
					entity, err := a.Posts.Votable(ctx, c.String("entity"))
					if err != nil {
						return err
					}
					delta, err := a.Votes.Reconcile(ctx, entity, c.String("user"), dir, int(c.Int("count")))
					if err != nil {
						return err
					}
					logger.Info().Str("entity", entity.VotableKey()).Int("delta", delta).Msg("maintenance: голоса сверены")
					return nil
				}),
			},
			{
				Name:  "resolve-user",
				Usage: "Найти пользователя по псевдониму в обсуждении поста",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "post", Usage: "Ключ поста", Required: true},
					&cli.IntFlag{Name: "pseudonym", Usage: "Номер псевдонима в обсуждении", Required: true},
				},
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					return resolveUser(ctx, a, os.Stdout, c.String("post"), int(c.Int("pseudonym")))
				}),
			},
			{
				Name:  "list-flags",
				Usage: "Показать жалобы на пост или комментарий",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "entity", Usage: "Ключ поста или комментария", Required: true},
				},
				Action: withApp(cfg, logger, func(ctx context.Context, a *app.App, c *cli.Command) error {
					flags, err := a.Reports.FlagsFor(ctx, c.String("entity"))
					if err != nil {
						return err
					}
					for _, f := range flags {
						fmt.Printf("%s\t%s\t%s\n", f.Key, f.EntityKind, f.Created.Format(time.RFC3339))
					}
					return nil
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error().Err(err).Msg("maintenance: команда завершилась ошибкой")
		os.Exit(1)
	}
}

func withApp(cfg config.AppConfig, logger zerolog.Logger, fn func(ctx context.Context, a *app.App, c *cli.Command) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		a, err := app.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, c)
	}
}

// resolveUser печатает ID пользователя, скрытого за псевдонимом в обсуждении поста.
func resolveUser(ctx context.Context, a *app.App, w io.Writer, postKey string, pseudonym int) error {
	userID, err := a.Identity.ResolveRealUser(ctx, postKey, pseudonym)
	if err != nil {
		return fmt.Errorf("поиск пользователя: %w", err)
	}
	_, err = fmt.Fprintln(w, userID)
	return err
}
