// Package seed loads the demo hierarchy used by local runs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mobilenet-retail/backoffice/internal/access"
	"github.com/mobilenet-retail/backoffice/internal/auth"
	"github.com/mobilenet-retail/backoffice/internal/org"
	"github.com/mobilenet-retail/backoffice/internal/sales"
	"github.com/mobilenet-retail/backoffice/internal/settlement"
	"github.com/mobilenet-retail/backoffice/internal/shared"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "mobilenet123"

// Target is implemented by both the memory and the Postgres store.
type Target interface {
	CreateBranch(ctx context.Context, b org.Branch) (org.Branch, error)
	CreateStore(ctx context.Context, s org.Store) (org.Store, error)
	UpsertGoal(ctx context.Context, g org.StoreGoal) (org.StoreGoal, error)
	CreateUser(ctx context.Context, u auth.User) (auth.User, error)
	FindByEmail(ctx context.Context, email string) (auth.User, error)
}

// Summary reports what a run created.
type Summary struct {
	Skipped  bool
	Branches []org.Branch
	Stores   []org.Store
	Users    []auth.User
	Sales    int
}

type storeSpec struct {
	name, owner, phone string
}

var demo = []struct {
	branch org.Branch
	stores []storeSpec
}{
	{
		branch: org.Branch{Code: "SEOUL", Name: "Seoul Branch", ManagerName: "Kim Minseo"},
		stores: []storeSpec{
			{"Gangnam Mobile", "Lee Jiho", "02-555-0101"},
			{"Mapo Mobile", "Park Soyeon", "02-555-0102"},
		},
	},
	{
		branch: org.Branch{Code: "BUSAN", Name: "Busan Branch", ManagerName: "Choi Yuna"},
		stores: []storeSpec{
			{"Haeundae Mobile", "Jung Hyun", "051-555-0201"},
			{"Seomyeon Mobile", "Kang Dohyun", "051-555-0202"},
		},
	},
}

// Run creates the demo hierarchy unless the HQ account already exists. When
// writer is non-nil a handful of sales are saved for each store through it,
// so the seeded rows carry computed settlement fields.
func Run(ctx context.Context, target Target, writer *sales.Service, now time.Time, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sum Summary
	if _, err := target.FindByEmail(ctx, "hq@mobilenet.test"); err == nil {
		sum.Skipped = true
		return sum, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return sum, err
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return sum, err
	}
	month := now.Format("2006-01")

	hq, err := target.CreateUser(ctx, auth.User{Email: "hq@mobilenet.test", Name: "Headquarters", PasswordHash: hash, Role: access.RoleHeadquarters, IsActive: true})
	if err != nil {
		return sum, fmt.Errorf("seed hq user: %w", err)
	}
	sum.Users = append(sum.Users, hq)

	for bi, d := range demo {
		branch, err := target.CreateBranch(ctx, d.branch)
		if err != nil {
			return sum, fmt.Errorf("seed branch %s: %w", d.branch.Code, err)
		}
		sum.Branches = append(sum.Branches, branch)
		branchID := branch.ID
		manager, err := target.CreateUser(ctx, auth.User{
			Email: fmt.Sprintf("branch%d@mobilenet.test", bi+1), Name: d.branch.ManagerName,
			PasswordHash: hash, Role: access.RoleBranch, BranchID: &branchID, IsActive: true,
		})
		if err != nil {
			return sum, fmt.Errorf("seed branch user: %w", err)
		}
		sum.Users = append(sum.Users, manager)

		for _, spec := range d.stores {
			st, err := target.CreateStore(ctx, org.Store{BranchID: branch.ID, Name: spec.name, OwnerName: spec.owner, Phone: spec.phone})
			if err != nil {
				return sum, fmt.Errorf("seed store %s: %w", spec.name, err)
			}
			sum.Stores = append(sum.Stores, st)
			storeID := st.ID
			owner, err := target.CreateUser(ctx, auth.User{
				Email: fmt.Sprintf("store%d@mobilenet.test", st.ID), Name: spec.owner,
				PasswordHash: hash, Role: access.RoleStore, StoreID: &storeID, IsActive: true,
			})
			if err != nil {
				return sum, fmt.Errorf("seed store user: %w", err)
			}
			sum.Users = append(sum.Users, owner)
			if _, err := target.UpsertGoal(ctx, org.StoreGoal{StoreID: st.ID, Month: month, TargetCount: 40, TargetAmount: 6_000_000}); err != nil {
				return sum, fmt.Errorf("seed goal: %w", err)
			}
		}
	}

	if writer != nil {
		n, err := seedSales(ctx, writer, hq, sum.Stores, now)
		if err != nil {
			return sum, err
		}
		sum.Sales = n
	}
	logger.Info("seeded demo data",
		slog.Int("branches", len(sum.Branches)),
		slog.Int("stores", len(sum.Stores)),
		slog.Int("users", len(sum.Users)),
		slog.Int("sales", sum.Sales))
	return sum, nil
}

var carriers = []string{"SKT", "KT", "LGU"}

func seedSales(ctx context.Context, writer *sales.Service, hq auth.User, stores []org.Store, now time.Time) (int, error) {
	day := now.Format(sales.DateLayout)
	saved := 0
	for i, st := range stores {
		storeID := st.ID
		rows := make([]sales.RowInput, 0, 3)
		for j := 0; j < 3; j++ {
			rows = append(rows, sales.RowInput{
				SaleDate:       day,
				Carrier:        carriers[(i+j)%len(carriers)],
				ActivationType: "new",
				ModelName:      "Galaxy S25",
				Input: settlement.Input{
					BasePrice: 100_000 + int64(j)*10_000,
					Verbal1:   50_000,
					UsimFee:   3_000,
				},
			})
		}
		res, err := writer.BulkUpsert(ctx, hq.Identity(), sales.BulkRequest{Sales: rows, StoreID: &storeID}, "")
		if err != nil {
			return saved, fmt.Errorf("seed sales for store %d: %w", st.ID, err)
		}
		saved += res.SavedCount
	}
	return saved, nil
}
