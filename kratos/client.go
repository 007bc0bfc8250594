// Package kratos is the primary email/password identity source, backed by
// the native (API) self-service flows of Ory Kratos.
package kratos

import (
	"context"
	"net/http"
	"time"

	kratosclient "github.com/ory/kratos-client-go"
)

// flowAPI is the subset of the Kratos frontend API the source drives
type flowAPI interface {
	CreateLoginFlow(ctx context.Context) (*kratosclient.LoginFlow, *http.Response, error)
	SubmitPassword(ctx context.Context, flowID, identifier, password string) (*kratosclient.SuccessfulNativeLogin, *http.Response, error)
	Whoami(ctx context.Context, sessionToken string) (*kratosclient.Session, *http.Response, error)
	Logout(ctx context.Context, sessionToken string) (*http.Response, error)
}

// sdkAPI implements flowAPI with the generated Kratos client
type sdkAPI struct {
	client *kratosclient.APIClient
}

func newSDKAPI(publicURL string, timeout time.Duration) *sdkAPI {
	configuration := kratosclient.NewConfiguration()
	configuration.Servers = []kratosclient.ServerConfiguration{
		{
			URL: publicURL,
		},
	}
	configuration.HTTPClient = &http.Client{
		Timeout: timeout,
	}
	configuration.DefaultHeader["Accept"] = "application/json"

	return &sdkAPI{client: kratosclient.NewAPIClient(configuration)}
}

func (a *sdkAPI) CreateLoginFlow(ctx context.Context) (*kratosclient.LoginFlow, *http.Response, error) {
	return a.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
}

func (a *sdkAPI) SubmitPassword(ctx context.Context, flowID, identifier, password string) (*kratosclient.SuccessfulNativeLogin, *http.Response, error) {
	body := kratosclient.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: identifier,
		Password:   password,
	}
	return a.client.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flowID).
		UpdateLoginFlowBody(kratosclient.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
}

func (a *sdkAPI) Whoami(ctx context.Context, sessionToken string) (*kratosclient.Session, *http.Response, error) {
	return a.client.FrontendAPI.ToSession(ctx).XSessionToken(sessionToken).Execute()
}

func (a *sdkAPI) Logout(ctx context.Context, sessionToken string) (*http.Response, error) {
	return a.client.FrontendAPI.
		PerformNativeLogout(ctx).
		PerformNativeLogoutBody(kratosclient.PerformNativeLogoutBody{SessionToken: sessionToken}).
		Execute()
}
