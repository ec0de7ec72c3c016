package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
	"bitbucket.org/mmdatafocus/estimator_backend/models"
	"bitbucket.org/mmdatafocus/estimator_backend/utils"
	"github.com/sirupsen/logrus"
)

// Maintenance tool: re-runs aggregation over stored costings and persists the
// result. Aggregates are always derivable from items, so this is a no-op on
// healthy data; it repairs costings written before a rounding or percentage
// rule change.
func main() {
	companyID := flag.String("company-id", "", "Required: company id")
	estimateID := flag.String("estimate-id", "", "Optional: single estimate id (default: all costings for the company)")
	dryRun := flag.Bool("dry-run", false, "Report totals that would change without saving")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing estimates and continue")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	ctx := utils.SetCompanyIdInContext(context.Background(), strings.TrimSpace(*companyID))
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "System")

	var estimateIds []string
	if strings.TrimSpace(*estimateID) != "" {
		estimateIds = append(estimateIds, strings.TrimSpace(*estimateID))
	} else {
		if err := db.Model(&models.InternalCosting{}).
			Where("company_id = ?", *companyID).
			Order("estimate_id ASC").
			Pluck("estimate_id", &estimateIds).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to list costings: %v\n", err)
			os.Exit(1)
		}
	}

	var changed, failed int
	for _, id := range estimateIds {
		costing, err := models.GetInternalCosting(ctx, id)
		if err != nil {
			failed++
			logger.WithFields(logrus.Fields{"estimate_id": id}).Error("load failed: " + err.Error())
			if !*continueOnError {
				os.Exit(1)
			}
			continue
		}
		if costing == nil {
			continue
		}

		before := costing.TotalAmount
		models.RecomputeEstimate(costing)
		if !costing.TotalAmount.Equal(before) {
			changed++
			logger.WithFields(logrus.Fields{
				"estimate_id": id,
				"old_total":   before.StringFixed(2),
				"new_total":   costing.TotalAmount.StringFixed(2),
			}).Warn("total changed on recompute")
		}
		if *dryRun {
			continue
		}

		if err := models.SaveInternalCosting(ctx, costing); err != nil {
			failed++
			logger.WithFields(logrus.Fields{"estimate_id": id}).Error("save failed: " + err.Error())
			if !*continueOnError {
				os.Exit(1)
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"scanned": len(estimateIds),
		"changed": changed,
		"failed":  failed,
		"dry_run": *dryRun,
	}).Info("costing recompute finished")
}
