package platform

import "liveAgent/internal/listener"

var buyinSurface = surface{
	Home:       "https://buyin.jinritemai.com/dashboard/live/control",
	Login:      "https://buyin.jinritemai.com/mpa/account/login",
	LoginHints: []string{"/account/login", "/login"},
	Ready:      "div[class*='goodsPanel'], div[class*='live-control']",
	LoggedIn:   "div[class*='header'] img[class*='avatar']",
	Account:    "div[class*='nickname'], span[class*='userName']",
}

// buyin - 巨量百应: та же панель, что у 抖音小店, но кабинет автора.
type buyin struct {
	compass
}

func newBuyin(d Deps) Adapter {
	return &buyin{compass: compass{
		dashboard: newDashboard(Buyin, CapPopup|CapComment|CapListen, buyinSurface, d),
		dom:       compassDOM,
	}}
}

func (a *buyin) CommentSource() listener.Source {
	return compassSource(Buyin)
}
