package pullrequest

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
)

type httpRespWriter struct {
	http.ResponseWriter
	logger *zap.Logger
}

func newHTTPRespWriter(logger *zap.Logger, resp http.ResponseWriter) *httpRespWriter {
	return &httpRespWriter{
		ResponseWriter: resp,
		logger:         logger,
	}
}

// WriteStr writes a string to the http response writer.
// If an error happens, it is logged with info priority and false is returned.
// If it succeeded true is returned.
func (rw *httpRespWriter) WriteStr(str string) (wasSuccessful bool) {
	_, err := rw.ResponseWriter.Write([]byte(str))
	if err != nil {
		rw.logger.Info("sending http response failed", zap.Error(err))
		return false
	}

	return true
}

// HTTPHandlerList lists the in-progress pull requests as plain text.
func (r *Registry) HTTPHandlerList(respWr http.ResponseWriter, req *http.Request) {
	resp := newHTTPRespWriter(r.logger, respWr)

	prs, err := r.store.InProgressPullRequests(req.Context())
	if err != nil {
		r.logger.Warn("listing in-progress pull requests failed",
			logfields.Event("http_list_pull_requests_failed"),
			zap.Error(err),
		)

		http.Error(respWr, "listing pull requests failed", http.StatusInternalServerError)
		return
	}

	resp.Header().Add("Content-Type", "text/plain")

	if len(prs) == 0 {
		resp.WriteStr("no dependency update pull requests in progress\n")
		return
	}

	for _, pr := range prs {
		success := resp.WriteStr(fmt.Sprintf(
			"Target: %s %s\n\tPR: %s\tHead: %s\tCreated: %s\tUpdated: %s\n",
			pr.TargetRepository, pr.TargetBranch,
			pr.URL, pr.HeadBranch,
			pr.CreatedAt.Format(time.RFC822), pr.UpdatedAt.Format(time.RFC822),
		))
		if !success {
			return
		}

		for _, upd := range pr.ContainedUpdates {
			if !resp.WriteStr(fmt.Sprintf(
				"\t\tSubscription: %s\tBuild: %-6d\tSource: %s\n",
				upd.SubscriptionID, upd.BuildID, upd.SourceRepo,
			)) {
				return
			}
		}
	}
}
