package mp

// Admin console endpoints, relative to the configured base URL.
const (
	SearchBizPath = "/cgi-bin/searchbiz"
	AppMsgPath    = "/cgi-bin/appmsg"
)
