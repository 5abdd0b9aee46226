// Package routes decides what each application location shows for a given
// session state.
package routes

import (
	"strings"

	"github.com/chimerakang/changedesk"
)

// Application paths.
const (
	PathLogin          = "/login"
	PathDashboard      = "/"
	PathCashRegister   = "/cash-register"
	PathTransactions   = "/transactions"
	PathNewTransaction = "/new-transaction"
	PathSupply         = "/supply"
	PathCurrencies     = "/currencies"
	PathReports        = "/reports"
	PathUsers          = "/users"
)

// Outcome is what a gate decided.
type Outcome int

const (
	// Render shows the requested page.
	Render Outcome = iota
	// Loading shows a placeholder while the session is being restored.
	Loading
	// Redirect replaces the location with Decision.Target.
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the result of a gate.
type Decision struct {
	Outcome Outcome
	// Target is set for Redirect.
	Target string
}

func render() Decision            { return Decision{Outcome: Render} }
func loading() Decision           { return Decision{Outcome: Loading} }
func redirect(to string) Decision { return Decision{Outcome: Redirect, Target: to} }

// Gate decides whether a page may be shown.
type Gate func(state changedesk.SessionState) Decision

// Protected renders for any established session and sends everyone else to the login page.
func Protected(state changedesk.SessionState) Decision {
	switch state.Status() {
	case changedesk.StatusUnresolved:
		return loading()
	case changedesk.StatusAbsent:
		return redirect(PathLogin)
	}
	return render()
}

// AdminOnly is Protected restricted to admins. Other roles go to the dashboard.
func AdminOnly(state changedesk.SessionState) Decision {
	if d := Protected(state); d.Outcome != Render {
		return d
	}
	if !state.IsAdmin() {
		return redirect(PathDashboard)
	}
	return render()
}

// LoginPage sends an established session to the dashboard.
func LoginPage(state changedesk.SessionState) Decision {
	if state.Status() == changedesk.StatusPresent {
		return redirect(PathDashboard)
	}
	return render()
}

// Route binds a path to a gate and a page title.
type Route struct {
	Path  string
	Title string
	Gate  Gate
}

// Table is an ordered set of routes. Unknown paths redirect to Fallback.
type Table struct {
	routes   map[string]Route
	order    []string
	Fallback string
}

// NewTable builds a table from routes.
func NewTable(fallback string, routes ...Route) *Table {
	t := &Table{routes: make(map[string]Route, len(routes)), Fallback: fallback}
	for _, r := range routes {
		if _, dup := t.routes[r.Path]; !dup {
			t.order = append(t.order, r.Path)
		}
		t.routes[r.Path] = r
	}
	return t
}

// Default is the application route table.
func Default() *Table {
	return NewTable(PathDashboard,
		Route{Path: PathLogin, Title: "Connexion", Gate: LoginPage},
		Route{Path: PathDashboard, Title: "Tableau de bord", Gate: Protected},
		Route{Path: PathCashRegister, Title: "Gestion de Caisse", Gate: Protected},
		Route{Path: PathTransactions, Title: "Transactions", Gate: Protected},
		Route{Path: PathNewTransaction, Title: "Nouvelle Transaction", Gate: Protected},
		Route{Path: PathSupply, Title: "Approvisionnement", Gate: Protected},
		Route{Path: PathCurrencies, Title: "Devises", Gate: Protected},
		Route{Path: PathReports, Title: "Rapports", Gate: Protected},
		Route{Path: PathUsers, Title: "Utilisateurs", Gate: AdminOnly},
	)
}

// Lookup returns the route registered for path.
func (t *Table) Lookup(path string) (Route, bool) {
	r, ok := t.routes[Clean(path)]
	return r, ok
}

// Routes returns the routes in registration order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.order))
	for _, p := range t.order {
		out = append(out, t.routes[p])
	}
	return out
}

// Resolve decides what path shows for state.
func (t *Table) Resolve(path string, state changedesk.SessionState) Decision {
	r, ok := t.Lookup(path)
	if !ok {
		return redirect(t.Fallback)
	}
	return r.Gate(state)
}

// Clean normalizes a location: query and fragment are dropped, a leading
// slash is added and a trailing one removed.
func Clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// MenuItem is a navigation entry.
type MenuItem struct {
	Path  string
	Label string
}

// Menu lists the navigation entries visible to state. Users is only listed
// for admins and Reports for admins and supervisors.
func Menu(state changedesk.SessionState) []MenuItem {
	if state.Status() != changedesk.StatusPresent {
		return nil
	}
	items := []MenuItem{
		{Path: PathDashboard, Label: "Tableau de bord"},
		{Path: PathCashRegister, Label: "Caisse"},
		{Path: PathTransactions, Label: "Transactions"},
		{Path: PathNewTransaction, Label: "Nouvelle Transaction"},
		{Path: PathSupply, Label: "Approvisionnement"},
		{Path: PathCurrencies, Label: "Devises"},
	}
	if state.IsAdmin() {
		items = append(items, MenuItem{Path: PathUsers, Label: "Utilisateurs"})
	}
	if state.IsAdminOrSupervisor() {
		items = append(items, MenuItem{Path: PathReports, Label: "Rapports"})
	}
	return items
}
