package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/carbledger/pkg/access"
	"github.com/yourorg/carbledger/pkg/allowance"
	"github.com/yourorg/carbledger/pkg/certificate"
	"github.com/yourorg/carbledger/pkg/events"
	"github.com/yourorg/carbledger/pkg/httpapi"
	"github.com/yourorg/carbledger/pkg/ranking"
	"github.com/yourorg/carbledger/pkg/registry"
	"github.com/yourorg/carbledger/pkg/token"
	"github.com/yourorg/carbledger/pkg/verifier"
)

// Component identities. The ledger and the ranking engine act under these
// addresses towards the token and certificate stores.
var (
	ledgerIdentity  = common.HexToAddress("0x0000000000000000000000000000000000000101")
	rankingIdentity = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

func main() {
	var listenAddr, vkPath, adminS, operatorS string

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cmd := &cobra.Command{
		Use:   "carbd",
		Short: "Carbon allowance ledger daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()

			if adminS == "" {
				adminS = os.Getenv("CARBD_ADMIN")
			}
			if operatorS == "" {
				operatorS = os.Getenv("CARBD_OPERATOR")
			}
			admin := common.HexToAddress(adminS)
			operator := common.HexToAddress(operatorS)

			var sink events.Sink
			if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
				topic := os.Getenv("KAFKA_TOPIC")
				if topic == "" {
					topic = "carbledger.events"
				}
				ks := events.NewKafkaSink(strings.Split(brokers, ","), topic, log)
				defer ks.Close()
				sink = ks
				log.Info().Str("topic", topic).Msg("kafka event sink enabled")
			}

			// Per-component access controllers, all rooted at the same admin.
			regACL := access.NewController(admin)
			tokACL := access.NewController(admin)
			certACL := access.NewController(admin)
			ledACL := access.NewController(admin)
			rankACL := access.NewController(admin)

			reg := registry.New(regACL, registry.WithSink(sink), registry.WithLogger(log))
			tok := token.New(tokACL, token.WithSink(sink), token.WithLogger(log))
			certs := certificate.New(certACL, certificate.WithSink(sink), certificate.WithLogger(log))

			// Cross-component trust: the ledger mints and burns credits and
			// issues certificates; the ranking engine mints round rewards.
			if err := tokACL.Grant(admin, access.RoleMinter, ledgerIdentity); err != nil {
				return err
			}
			if err := tokACL.Grant(admin, access.RoleBurner, ledgerIdentity); err != nil {
				return err
			}
			if err := tokACL.Grant(admin, access.RoleMinter, rankingIdentity); err != nil {
				return err
			}
			if err := certACL.Grant(admin, access.RoleMinter, ledgerIdentity); err != nil {
				return err
			}
			if err := regACL.Grant(admin, access.RoleOperator, operator); err != nil {
				return err
			}
			if err := ledACL.Grant(admin, access.RoleOperator, operator); err != nil {
				return err
			}

			opts := []allowance.Option{allowance.WithSink(sink), allowance.WithLogger(log)}
			if vkPath != "" {
				vk, err := verifier.LoadVerifyingKey(vkPath)
				if err != nil {
					return err
				}
				gate := verifier.NewGate(vk, verifier.EmissionInputCount,
					verifier.WithSink(sink), verifier.WithLogger(log))
				opts = append(opts, allowance.WithGate(gate))
				if err := ledACL.Grant(admin, access.RoleVerifier, operator); err != nil {
					return err
				}
				log.Info().Str("vk", vkPath).Msg("proof gate enabled")
			}
			ledger := allowance.New(ledACL, ledgerIdentity, reg, tok, certs, opts...)

			engine := ranking.New(rankACL, rankingIdentity, tok,
				ranking.WithSink(sink), ranking.WithLogger(log))
			if err := engine.SetRankingRole(admin, operator); err != nil {
				return err
			}

			srv := httpapi.NewServer(ledger, reg, tok, certs, operator, log).
				WithRanking(engine, admin).
				Listen(listenAddr)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", listenAddr).Msg("http listener up")
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				log.Info().Stringer("signal", sig).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&vkPath, "vk", "", "verifying key for the proof gate (optional)")
	cmd.Flags().StringVar(&adminS, "admin", "", "admin wallet (or CARBD_ADMIN)")
	cmd.Flags().StringVar(&operatorS, "operator", "", "operator wallet (or CARBD_OPERATOR)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("carbd exited")
	}
}
