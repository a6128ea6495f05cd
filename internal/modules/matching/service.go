// README: Matching service pairs requesting riders with the nearest idle driver.
package matching

import (
	"github.com/sirupsen/logrus"

	"ridesim/internal/modules/agent"
	"ridesim/internal/types"
)

// Service is stateless apart from its logger; one instance can serve any
// number of simulations.
type Service struct {
	log logrus.FieldLogger
}

func NewService(log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{log: log}
}

// Match assigns riders in the given order, each to the closest remaining
// idle driver by Manhattan distance. Ties go to the driver seen first.
// Matched drivers leave the pool, so no driver is matched twice per call.
// A rider whose status refuses assignment is skipped and the driver stays
// in the pool.
func (s *Service) Match(idle []*agent.Driver, riders []*agent.Rider) []MatchResult {
	pool := make([]*agent.Driver, 0, len(idle))
	for _, d := range idle {
		if _, ok := d.Pos(); !ok {
			s.log.WithField("agent_id", d.ID).Warn("driver has no position, skipping for matching")
			continue
		}
		pool = append(pool, d)
	}

	var results []MatchResult
	for _, r := range riders {
		if len(pool) == 0 {
			break
		}
		rp, ok := r.Pos()
		if !ok {
			s.log.WithField("agent_id", r.ID).Warn("rider has no position, skipping matching")
			continue
		}

		best, bestDist := nearest(pool, rp)
		d := pool[best]
		if err := d.Assign(r); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"agent_id": r.ID,
				"driver":   d.ID,
			}).Warn("assignment refused, skipping rider")
			continue
		}
		pool = append(pool[:best], pool[best+1:]...)
		results = append(results, MatchResult{RiderID: r.ID, DriverID: d.ID, Distance: bestDist})
	}
	return results
}

// nearest returns the index of the pool driver closest to c. pool must be
// non-empty and every driver in it placed.
func nearest(pool []*agent.Driver, c types.Cell) (int, int) {
	best, bestDist := -1, 0
	for i, d := range pool {
		dp, _ := d.Pos()
		dist := types.Manhattan(dp, c)
		if best < 0 || dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best, bestDist
}
