package flow

import (
	"context"
	"fmt"

	"github.com/wintermelt/minecraft_session_keeper/internal/msa"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// msaChain carries the intermediate tokens of the Microsoft login chain
// between steps. All Microsoft flow variants end with the same three
// hops: Xbox Live, XSTS, then the Minecraft services exchange.
type msaChain struct {
	client *msa.Client

	tokens    *msa.TokenResponse
	xbl       *msa.XBLToken
	xsts      string
	mcSession *msa.MCSession
	mcProfile *msa.MCProfile
}

func (c *msaChain) xboxStep(ctx context.Context) error {
	xbl, err := c.client.XboxAuth(ctx, c.tokens.AccessToken)
	if err != nil {
		return err
	}
	c.xbl = xbl
	return nil
}

func (c *msaChain) xstsStep(ctx context.Context) error {
	xsts, err := c.client.XSTSAuth(ctx, c.xbl)
	if err != nil {
		return err
	}
	c.xsts = xsts
	return nil
}

func (c *msaChain) minecraftStep(ctx context.Context) error {
	mc, err := c.client.LoginWithXbox(ctx, c.xbl.UserHash, c.xsts)
	if err != nil {
		return err
	}

	profile, err := c.client.Profile(ctx, mc.AccessToken)
	if err != nil {
		return fmt.Errorf("fetch game profile: %w", err)
	}

	c.mcSession = mc
	c.mcProfile = profile
	return nil
}

// chainSteps returns the shared tail of every Microsoft flow.
func (c *msaChain) chainSteps() []step {
	return []step{
		{StageXboxAuth, c.xboxStep},
		{StageXSTSAuth, c.xstsStep},
		{StageMinecraftAuth, c.minecraftStep},
	}
}

// finish converts the completed chain into a session plus the reusable
// profile carrying the rotated refresh token.
func (c *msaChain) finish(clientID string) (session.Session, profiles.Profile) {
	sess := session.Session{
		Username:    c.mcProfile.Name,
		UUID:        c.mcProfile.ID,
		AccessToken: c.mcSession.AccessToken,
		ClientID:    clientID,
		Type:        session.AccountMicrosoft,
	}
	prof := profiles.Profile{
		Name:         c.mcProfile.Name,
		UUID:         c.mcProfile.ID,
		Type:         string(session.AccountMicrosoft),
		RefreshToken: c.tokens.RefreshToken,
	}
	return sess, prof
}
