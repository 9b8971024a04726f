package core

// DefaultRoutes is the application's route table. Order matters: the first
// matching pattern wins, and "*" answers whatever nothing else matched.
func DefaultRoutes(g *Gate) []Route {
	return []Route{
		{Pattern: "/", Target: AuthRender(g, "home")},
		{Pattern: "/profile/", Target: Chain{g.RequireLogin(), Render("profile")}},
		{Pattern: "/login/", Target: ByVerb{
			"get":  {g.RedirectIfAuthenticated(), Render("login")},
			"post": {g.Login(), RedirectTo("/")},
		}},
		{Pattern: "/logout/", Target: Chain{g.Logout(), RedirectTo(g.LoginPath())}},
		{Pattern: "/error/(:err_no)?/?", Target: Chain{ErrorPage}},
		{Pattern: WildcardPattern, Target: Chain{RedirectTo("/error/404/")}},
	}
}
