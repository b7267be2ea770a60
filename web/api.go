package web

import (
	"net/http"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/identity"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type recoverRequest struct {
	Mnemonic string `json:"mnemonic"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type mnemonicRequest struct {
	Mnemonic string `json:"mnemonic"`
}

type createSeriesRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ContentType string `json:"contentType"`
	Mnemonic    string `json:"mnemonic"`
}

func bindBody(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithError(c, domain.ValidationError("invalid request body"))
		return false
	}
	return true
}

// register answers with the recovery phrase. It is shown exactly once and
// never stored.
func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if !bindBody(c, &req) {
		return
	}
	res, err := h.Identity.RegisterAccount(c.Request.Context(), identity.RegistrationRequest{
		Credentials: identity.Credentials{Username: req.Username, Email: req.Email, Password: req.Password},
		DisplayName: req.DisplayName,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"account":  newAccountView(res.Account),
		"mnemonic": res.Mnemonic,
	})
}

func (h *handlers) recoverAccount(c *gin.Context) {
	var req recoverRequest
	if !bindBody(c, &req) {
		return
	}
	res, err := h.Identity.RecoverAccount(c.Request.Context(), identity.RecoveryRequest{
		Mnemonic: req.Mnemonic,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"account":           newAccountView(res.Account),
		"isNewAccount":      res.IsNewAccount,
		"previousActorUris": nonNil(res.PreviousActorURIs),
	})
}

func (h *handlers) claimSeries(c *gin.Context) {
	var req mnemonicRequest
	if !bindBody(c, &req) {
		return
	}
	res, err := h.Identity.ClaimSeries(c.Request.Context(), req.Mnemonic, currentAccount(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"series":            newSeriesView(res.Series),
		"isNewActor":        res.IsNewActor,
		"previousActorUris": nonNil(res.PreviousActorURIs),
	})
}

func (h *handlers) createSeries(c *gin.Context) {
	var req createSeriesRequest
	if !bindBody(c, &req) {
		return
	}
	s, err := h.Identity.CreateSeries(c.Request.Context(), currentAccount(c), identity.SeriesRequest{
		Title:       req.Title,
		Description: req.Description,
		ContentType: req.ContentType,
		Mnemonic:    req.Mnemonic,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"series": newSeriesView(s)})
}

func (h *handlers) bindSeries(c *gin.Context) {
	var req mnemonicRequest
	if !bindBody(c, &req) {
		return
	}
	s, err := h.Identity.BindSeries(c.Request.Context(), currentAccount(c), c.Param("slug"), req.Mnemonic)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": newSeriesView(s)})
}
