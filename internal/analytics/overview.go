package analytics

import "github.com/hitoshi/socialdash/internal/model"

// ComputeOverview は分析データの行から概要メトリクスを算出する。
// rowsは取得時の順序のまま渡す。トッププラットフォームは合計エンゲージメントが最大のもので、
// 同値の場合は行に先に出現したプラットフォームを採用する。
// エンゲージメントの合計は math.MaxInt64 で飽和させ、負の値に折り返さない。
func ComputeOverview(rows []*model.Analytics) model.OverviewMetrics {
	overview := model.OverviewMetrics{
		TopPlatform: model.DefaultTopPlatform,
		Platforms:   []model.PlatformEngagement{},
	}
	if len(rows) == 0 {
		return overview
	}

	index := make(map[string]int)
	for _, row := range rows {
		engagement := row.Metrics.Engagement()
		overview.TotalPosts++
		overview.TotalEngagement = model.SaturatingAdd(overview.TotalEngagement, engagement)

		i, ok := index[row.Platform]
		if !ok {
			i = len(overview.Platforms)
			index[row.Platform] = i
			overview.Platforms = append(overview.Platforms, model.PlatformEngagement{Platform: row.Platform})
		}
		overview.Platforms[i].Posts++
		overview.Platforms[i].Engagement = model.SaturatingAdd(overview.Platforms[i].Engagement, engagement)
	}

	overview.AvgEngagementRate = float64(overview.TotalEngagement) / float64(overview.TotalPosts)

	// 厳密に大きい場合のみ更新するため、同値では出現順で先のプラットフォームが残る
	best := overview.Platforms[0]
	for _, p := range overview.Platforms[1:] {
		if p.Engagement > best.Engagement {
			best = p
		}
	}
	overview.TopPlatform = best.Platform

	return overview
}
