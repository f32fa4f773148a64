package services

import (
	"context"

	"metros-backend/internal/models"
	"metros-backend/internal/repository"
	"metros-backend/internal/stations"
)

// StatsService computes waiting room statistics from the live user set.
type StatsService struct {
	userRepo repository.UserRepository
}

// NewStatsService creates a new stats service
func NewStatsService(userRepo repository.UserRepository) *StatsService {
	return &StatsService{userRepo: userRepo}
}

// WaitingRoom returns the per-station and total counters for a city.
func (s *StatsService) WaitingRoom(ctx context.Context, city string) (*models.WaitingRoomResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeWaitingRoom(users, city, stations.ForCity(city)), nil
}

// ComputeWaitingRoom derives station stats for a city from a user list.
// Pure function: recomputed on every call, nothing is stored.
//
// Only online users of the city are counted. A user whose station is not in
// the city's station table contributes to the totals but to no station
// bucket, so the per-station sums never exceed the city's online user count.
func ComputeWaitingRoom(users []*models.User, city string, stationNames []string) *models.WaitingRoomResponse {
	byStation := make(map[string]*models.StationStat, len(stationNames))
	resp := &models.WaitingRoomResponse{
		StationStats: make([]models.StationStat, 0, len(stationNames)),
	}
	for _, name := range stationNames {
		byStation[name] = &models.StationStat{Station: name}
	}

	for _, u := range users {
		if u.City != city || !u.Online {
			continue
		}
		resp.TotalStats.TotalUsers++
		waiting := u.IsWaiting && !u.IsConnected
		if waiting {
			resp.TotalStats.TotalWaiting++
		}
		if u.IsConnected {
			resp.TotalStats.TotalConnected++
		}

		stat, ok := byStation[u.Station]
		if !ok {
			continue
		}
		stat.TotalUsers++
		if waiting {
			stat.Waiting++
		}
		if u.IsConnected {
			stat.Connected++
		}
	}

	for _, name := range stationNames {
		resp.StationStats = append(resp.StationStats, *byStation[name])
	}
	return resp
}
