package shopify

// cartFields is selected by every query and mutation so the engine always
// sees the full cart after a change.
const cartFields = `
fragment CartFields on Cart {
  id
  checkoutUrl
  buyerIdentity { email phone }
  lines(first: 250) {
    nodes {
      id
      quantity
      merchandise {
        ... on ProductVariant {
          id
          title
          availableForSale
          quantityAvailable
          price { amount currencyCode }
          image { url }
          selectedOptions { name value }
          product { handle title }
        }
      }
    }
  }
}`

const userErrorFields = `userErrors { field message code }`

const queryCart = `query Cart($id: ID!) {
  cart(id: $id) { ...CartFields }
}` + cartFields

const mutationCartCreate = `mutation CartCreate($input: CartInput!) {
  cartCreate(input: $input) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const mutationCartLinesAdd = `mutation CartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const mutationCartLinesUpdate = `mutation CartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const mutationCartLinesRemove = `mutation CartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields

const mutationBuyerIdentityUpdate = `mutation CartBuyerIdentityUpdate($cartId: ID!, $buyerIdentity: CartBuyerIdentityInput!) {
  cartBuyerIdentityUpdate(cartId: $cartId, buyerIdentity: $buyerIdentity) { cart { ...CartFields } ` + userErrorFields + ` }
}` + cartFields
