package settingsclient

// Presentation attributes written by applySettings.
const (
	AttrTheme           = "data-theme"
	AttrSidebarPosition = "data-position"
	AttrSidebarSize     = "data-size"
)

// Element is a presentation node that carries attributes.
type Element interface {
	SetAttribute(name, value string)
}

// Document gives the client access to the nodes it styles.
type Document interface {
	Root() Element
	// Sidebar returns false when the page has no sidebar.
	Sidebar() (Element, bool)
}

type nopDocument struct{}

func (nopDocument) Root() Element            { return nopElement{} }
func (nopDocument) Sidebar() (Element, bool) { return nil, false }

type nopElement struct{}

func (nopElement) SetAttribute(string, string) {}
