package threshold

import (
	"context"
	"fmt"
	"strconv"

	"hvacstock/internal/core/apperror"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/core/tx"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/catalog"
	"hvacstock/pkg/logger"
)

const (
	productsTable = "products"
	settingsTable = "inventory_settings"
	settingsRowPK = "1"
)

// View describes a product's threshold as an operator sees it.
type View struct {
	ProductID id.ID            `json:"productId"`
	Setting   entity.Threshold `json:"override"`
	Effective int              `json:"effective"`
	Default   int              `json:"default"`
	// UsesDefault is true when the default is in force, including overrides equal to it.
	UsesDefault     bool  `json:"usesDefault"`
	SettingsVersion int64 `json:"settingsVersion"`
}

// UpdateDefaultCommand changes the global default threshold.
type UpdateDefaultCommand struct {
	Value           int
	ResetOverrides  bool
	ExpectedVersion *int64
}

// UpdateDefaultResult reports the new settings and how many overrides were cleared.
type UpdateDefaultResult struct {
	Settings         Settings `json:"settings"`
	OverridesCleared int64    `json:"overridesCleared"`
}

// Service reads and writes thresholds.
type Service struct {
	products  catalog.Repository
	settings  SettingsStore
	txManager tx.Manager
	auditor   audit.Recorder
}

// NewService creates a new threshold service.
func NewService(products catalog.Repository, settings SettingsStore, txManager tx.Manager, auditor audit.Recorder) *Service {
	return &Service{
		products:  products,
		settings:  settings,
		txManager: txManager,
		auditor:   auditor,
	}
}

// EffectiveThreshold returns the threshold in force for the product.
func (s *Service) EffectiveThreshold(ctx context.Context, productID id.ID) (int, error) {
	view, err := s.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return view.Effective, nil
}

// Get returns the product's threshold view.
func (s *Service) Get(ctx context.Context, productID id.ID) (View, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return View{}, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return View{}, fmt.Errorf("get settings: %w", err)
	}
	return newView(product.ID, product.Threshold(), settings), nil
}

// SetThreshold stores an override, or clears it when value is nil.
func (s *Service) SetThreshold(ctx context.Context, productID id.ID, value *int) (View, error) {
	next := entity.UsesDefault()
	if value != nil {
		if *value < 0 {
			return View{}, apperror.NewValidation("threshold must not be negative").WithDetail("value", *value)
		}
		next = entity.Override(*value)
	}

	var view View
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		product, err := s.products.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		settings, err := s.settings.Get(ctx)
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}

		prev := product.Threshold()
		if err := s.products.SetThreshold(ctx, productID, next); err != nil {
			return fmt.Errorf("set threshold: %w", err)
		}

		s.auditor.Record(ctx, audit.Entry{
			TableName: productsTable,
			RowPK:     productID.String(),
			Action:    audit.ActionUpdate,
			Before:    thresholdColumns(prev),
			After:     thresholdColumns(next),
			Comment:   "low stock threshold",
		})

		view = newView(productID, next, settings)
		return nil
	})
	if err != nil {
		return View{}, err
	}

	logger.Info(ctx, "low stock threshold updated",
		"product_id", productID,
		"override", next.IsOverride(),
		"effective", view.Effective,
	)
	return view, nil
}

// Settings returns the current inventory settings.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

// UpdateDefault sets the global default and optionally clears all product overrides.
func (s *Service) UpdateDefault(ctx context.Context, cmd UpdateDefaultCommand) (UpdateDefaultResult, error) {
	if cmd.Value < 0 {
		return UpdateDefaultResult{}, apperror.NewValidation("default threshold must not be negative").
			WithDetail("value", cmd.Value)
	}

	var result UpdateDefaultResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		prev, err := s.settings.Get(ctx)
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}

		var actor *id.ID
		if a := appctx.ActorID(ctx); !id.IsNil(a) {
			actor = &a
		}
		next, err := s.settings.Set(ctx, cmd.Value, cmd.ExpectedVersion, actor)
		if err != nil {
			return err
		}
		result.Settings = next

		if cmd.ResetOverrides {
			if result.OverridesCleared, err = s.products.ClearOverrides(ctx); err != nil {
				return fmt.Errorf("clear overrides: %w", err)
			}
		}

		comment := "default low stock threshold"
		if cmd.ResetOverrides {
			comment += "; overrides cleared: " + strconv.FormatInt(result.OverridesCleared, 10)
		}
		s.auditor.Record(ctx, audit.Entry{
			TableName: settingsTable,
			RowPK:     settingsRowPK,
			Action:    audit.ActionUpdate,
			Before:    map[string]any{"default_low_stock_threshold": prev.DefaultLowStockThreshold, "version": prev.Version},
			After:     map[string]any{"default_low_stock_threshold": next.DefaultLowStockThreshold, "version": next.Version},
			Comment:   comment,
		})
		return nil
	})
	if err != nil {
		return UpdateDefaultResult{}, err
	}

	logger.Info(ctx, "default low stock threshold updated",
		"value", result.Settings.DefaultLowStockThreshold,
		"version", result.Settings.Version,
		"overrides_cleared", result.OverridesCleared,
	)
	return result, nil
}

func newView(productID id.ID, t entity.Threshold, settings Settings) View {
	return View{
		ProductID:       productID,
		Setting:         t,
		Effective:       Resolve(t, settings),
		Default:         settings.DefaultLowStockThreshold,
		UsesDefault:     !Overrides(t, settings),
		SettingsVersion: settings.Version,
	}
}

func thresholdColumns(t entity.Threshold) map[string]any {
	override, value := t.Columns()
	var v any
	if value != nil {
		v = *value
	}
	return map[string]any{"low_stock_override": override, "low_stock_threshold": v}
}
