package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"anchor-rebalancer/internal/engine"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/pkg/utils"
)

func newPositionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Manage position cells",
	}
	cmd.AddCommand(newPositionCreateCmd(app), newPositionListCmd(app))
	return cmd
}

func newPositionCreateCmd(app *App) *cobra.Command {
	var (
		tenant    string
		portfolio string
		symbol    string
		cash      float64
		qty       float64
		anchor    float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a position cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			if anchor <= 0 {
				return fmt.Errorf("anchor must be positive")
			}
			now := time.Now()
			pos := models.PositionCell{
				ID:          uuid.NewString(),
				TenantID:    tenant,
				PortfolioID: portfolio,
				Symbol:      symbol,
				Qty:         qty,
				Cash:        cash,
				AnchorPrice: anchor,
				AvgCost:     anchor,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := app.Store.SavePosition(cmd.Context(), &pos); err != nil {
				return err
			}
			fmt.Printf("Created position %s (%s)\n", pos.ID, symbol)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "local", "tenant id")
	cmd.Flags().StringVar(&portfolio, "portfolio", "default", "portfolio id")
	cmd.Flags().StringVar(&symbol, "symbol", "", "asset symbol")
	cmd.Flags().Float64Var(&cash, "cash", 0, "starting cash")
	cmd.Flags().Float64Var(&qty, "qty", 0, "starting share quantity")
	cmd.Flags().Float64Var(&anchor, "anchor", 0, "starting anchor price")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("anchor")
	return cmd
}

func newPositionListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List position cells",
		RunE: func(cmd *cobra.Command, args []string) error {
			positions, err := app.Store.ListPositions(cmd.Context())
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Println("No positions")
				return nil
			}
			fmt.Printf("%-38s %-8s %-10s %-12s %-10s\n", "ID", "SYMBOL", "QTY", "CASH", "ANCHOR")
			for _, p := range positions {
				fmt.Printf("%-38s %-8s %-10s %-12s %-10.2f\n",
					p.ID, p.Symbol, utils.FormatQty(p.Qty), utils.FormatMoney(p.Cash), p.AnchorPrice)
			}
			return nil
		},
	}
}

func newAnchorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Manage anchor prices",
	}

	var price float64
	set := &cobra.Command{
		Use:   "set <position-id>",
		Short: "Manually override a position's anchor price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pos, err := app.Store.GetPosition(ctx, args[0])
			if err != nil {
				return err
			}
			evs, err := engine.ManualAnchorReset(pos, price, uuid.NewString(), time.Now())
			if err != nil {
				return err
			}
			existing, err := app.Store.GetEvents(ctx, pos.ID)
			if err != nil {
				return err
			}
			next := int64(len(existing))
			for i := range evs {
				next++
				evs[i].ID = uuid.NewString()
				evs[i].Seq = next
				if err := app.Store.AppendEvent(ctx, evs[i]); err != nil {
					return err
				}
			}
			if err := app.Store.SavePosition(ctx, pos); err != nil {
				return err
			}
			fmt.Printf("Anchor for %s set to %.2f\n", pos.ID, price)
			return nil
		},
	}
	set.Flags().Float64Var(&price, "price", 0, "new anchor price")
	set.MarkFlagRequired("price")

	cmd.AddCommand(set)
	return cmd
}
