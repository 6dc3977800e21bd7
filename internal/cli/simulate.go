package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateWallet   string
	simulateLamports uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次低余额快照并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("lamports") {
			return errors.New("--lamports 必须指定")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateWallet, simulateLamports)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateWallet, "wallet", "", "钱包地址 (默认取配置中的第一个)")
	simulateCmd.Flags().Uint64Var(&simulateLamports, "lamports", 0, "模拟余额 (lamports)")
}
