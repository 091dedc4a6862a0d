package events

import (
	"context"
	"time"

	"github.com/camprush/camprush/internal/models"
)

// OnPlanOpened is called after a monitored plan is detected open and its
// registrations exist. created is the number of registrations this
// detection inserted. The monitor calls it if it's set.
var OnPlanOpened func(ctx context.Context, plan models.RegistrationPlan, created int)

// OnOpenTimeFound is called when a closed page announced its opening time
// and the time was stored on the plan.
var OnOpenTimeFound func(ctx context.Context, plan models.RegistrationPlan, opensAt time.Time)
