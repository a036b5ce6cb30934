package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/yourorg/carbledger/pkg/verifier"
)

func main() {
	var envPath, vkPath string

	cmd := &cobra.Command{
		Use:   "verifier",
		Short: "Verify an emission-report proof envelope offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			vk, err := verifier.LoadVerifyingKey(vkPath)
			if err != nil {
				return err
			}
			env, err := verifier.Load(envPath)
			if err != nil {
				return err
			}

			gate := verifier.NewGate(vk, verifier.EmissionInputCount)
			res, err := gate.VerifyTx(*env)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			fmt.Printf("proof verified: device=%s trackedCO2=%s deviceKey=%#x\n",
				res.Inputs[0], res.Inputs[1], res.Inputs[2])
			return nil
		},
	}

	cmd.Flags().StringVar(&envPath, "envelope", "", "proof envelope JSON")
	cmd.Flags().StringVar(&vkPath, "vk", "", "verifying key binary")
	_ = cmd.MarkFlagRequired("envelope")
	_ = cmd.MarkFlagRequired("vk")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
